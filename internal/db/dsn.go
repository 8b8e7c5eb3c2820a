package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// WithDBName returns dsn with its database path replaced.
func WithDBName(dsn, database string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("empty DSN")
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
	}
	u.Path = "/" + strings.TrimPrefix(database, "/")
	return u.String(), nil
}

// ResolveCityDSN points a cluster DSN at the newest GTFS import whose
// database name contains city, as recorded by the importer in
// public.latest_successful_imports. An empty city returns dsn unchanged.
func ResolveCityDSN(ctx context.Context, dsn, city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return dsn, nil
	}
	meta, err := Open(dsn)
	if err != nil {
		return "", fmt.Errorf("open meta db: %w", err)
	}
	defer meta.Close()

	q := `
SELECT db_name
FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var name sql.NullString
	if err := meta.QueryRowContext(ctx, q, city).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("no gtfs import found for city like %q", city)
		}
		return "", err
	}
	if !name.Valid || name.String == "" {
		return "", fmt.Errorf("empty db_name for city like %q", city)
	}
	return WithDBName(dsn, name.String)
}
