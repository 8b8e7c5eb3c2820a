// Package db reads bus routes out of a GTFS feed imported into Postgres
// and turns them into seed routes for the catalog. It never writes.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"bus-tracker/internal/geo"
	"bus-tracker/internal/model"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// GTFS route_type for buses.
const busRouteType = 3

// MaxWaypoints caps the author-style waypoints derived from a shape.
const MaxWaypoints = 8

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

type gtfsRoute struct {
	id, shortName, longName, agency, shapeID string
}

// FetchSeedRoutes returns up to limit bus routes that have a shape. The
// shape becomes the route geometry and a handful of its points become
// the waypoints.
func FetchSeedRoutes(ctx context.Context, db *sql.DB, limit int) ([]model.BusRoute, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := `
SELECT r.route_id,
       COALESCE(r.route_short_name, ''),
       COALESCE(r.route_long_name, ''),
       COALESCE(a.agency_name, ''),
       MIN(t.shape_id)
FROM routes r
JOIN trips t ON t.route_id = r.route_id AND t.shape_id IS NOT NULL AND t.shape_id <> ''
LEFT JOIN agency a ON a.agency_id = r.agency_id
WHERE r.route_type::text = $1
GROUP BY r.route_id, r.route_short_name, r.route_long_name, a.agency_name
ORDER BY r.route_id
LIMIT $2`
	rows, err := db.QueryContext(ctx, q, fmt.Sprint(busRouteType), limit)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	var found []gtfsRoute
	for rows.Next() {
		var r gtfsRoute
		if err := rows.Scan(&r.id, &r.shortName, &r.longName, &r.agency, &r.shapeID); err != nil {
			rows.Close()
			return nil, err
		}
		found = append(found, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.BusRoute, 0, len(found))
	for _, r := range found {
		path, err := FetchShapePath(ctx, db, r.shapeID)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", r.id, err)
		}
		if len(path) < 2 {
			continue
		}
		out = append(out, model.BusRoute{
			ID:          "gtfs-" + r.id,
			Name:        RouteName(r.shortName, r.longName, r.id),
			CompanyID:   model.DefaultCompanyID,
			CompanyName: r.agency,
			Points:      Waypoints(path, MaxWaypoints),
			Geometry:    path,
			Status:      model.StatusNormal,
		})
	}
	return out, nil
}

// FetchShapePath loads a shape ordered by sequence. Both plain lat/lon
// columns and a PostGIS shape_pt_loc column are supported.
func FetchShapePath(ctx context.Context, db *sql.DB, shapeID string) ([]geo.LatLng, error) {
	if shapeID == "" {
		return nil, nil
	}
	cols, err := hasColumns(ctx, db, "public", "shapes", "shape_pt_lat", "shape_pt_lon", "shape_pt_loc")
	if err != nil {
		return nil, fmt.Errorf("introspect shapes columns: %w", err)
	}
	var q string
	switch {
	case cols["shape_pt_lat"] && cols["shape_pt_lon"]:
		q = `SELECT shape_pt_lat, shape_pt_lon FROM shapes WHERE shape_id = $1 ORDER BY shape_pt_sequence`
	case cols["shape_pt_loc"]:
		q = `SELECT ST_Y(shape_pt_loc::geometry), ST_X(shape_pt_loc::geometry)
             FROM shapes WHERE shape_id = $1 ORDER BY shape_pt_sequence`
	default:
		return nil, fmt.Errorf("shapes table missing expected columns (lat/lon or shape_pt_loc)")
	}
	rows, err := db.QueryContext(ctx, q, shapeID)
	if err != nil {
		return nil, fmt.Errorf("query shapes: %w", err)
	}
	defer rows.Close()
	var pts []geo.LatLng
	for rows.Next() {
		var p geo.LatLng
		if err := rows.Scan(&p.Lat, &p.Lng); err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

// RouteName prefers "short - long", then whichever is present, then id.
func RouteName(short, long, id string) string {
	short, long = strings.TrimSpace(short), strings.TrimSpace(long)
	switch {
	case short != "" && long != "":
		return short + " - " + long
	case long != "":
		return long
	case short != "":
		return short
	}
	return id
}

// Waypoints picks at most limit evenly spaced points of path, always
// keeping the first and last.
func Waypoints(path []geo.LatLng, limit int) []geo.LatLng {
	n := len(path)
	if n <= limit || limit < 2 {
		return geo.Clone(path)
	}
	out := make([]geo.LatLng, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, path[i*(n-1)/(limit-1)])
	}
	return out
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
