package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultHTTPAddr     = ":8080"
	DefaultOSRMURL      = "https://router.project-osrm.org"
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"
	DefaultGeminiModel  = "gemini-2.5-flash"
)

type Config struct {
	HTTPAddr       string `validate:"required"`
	TickIntervalMS int    `validate:"gt=0"`
	HTTPTimeoutMS  int    `validate:"gt=0"`

	OSRMURL          string `validate:"required,url"`
	NominatimURL     string `validate:"required,url"`
	GeocodeLanguage  string `validate:"required"`
	GeocodeCacheSize int    `validate:"gte=0"`

	GeminiAPIKey string
	GeminiModel  string `validate:"required"`

	// NATSURL empty disables NATS publishing.
	NATSURL           string `validate:"omitempty,url"`
	NATSSubjectPrefix string `validate:"required"`
	LogNATSSubjects   bool

	// MetricsAddr empty disables the metrics server.
	MetricsAddr string

	// DatabaseURL empty disables the GTFS seed import.
	DatabaseURL     string
	City            string
	SeedRoutesLimit int `validate:"gte=0"`

	RoutesFile string
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:          getenvDefault("HTTP_ADDR", DefaultHTTPAddr),
		OSRMURL:           getenvDefault("OSRM_URL", DefaultOSRMURL),
		NominatimURL:      getenvDefault("NOMINATIM_URL", DefaultNominatimURL),
		GeocodeLanguage:   getenvDefault("GEOCODE_LANGUAGE", "pt-BR"),
		GeminiAPIKey:      firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("API_KEY")),
		GeminiModel:       getenvDefault("GEMINI_MODEL", DefaultGeminiModel),
		NATSURL:           strings.TrimSpace(os.Getenv("NATS_URL")),
		NATSSubjectPrefix: getenvDefault("NATS_SUBJECT_PREFIX", "bustracker"),
		LogNATSSubjects:   parseBool(os.Getenv("LOG_NATS_SUBJECTS")),
		MetricsAddr:       os.Getenv("METRICS_ADDR"),
		DatabaseURL:       databaseURL(),
		City:              firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME")),
		RoutesFile:        strings.TrimSpace(os.Getenv("ROUTES_FILE")),
	}

	var err error
	if cfg.TickIntervalMS, err = getenvInt("TICK_INTERVAL_MS", 3000); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeoutMS, err = getenvInt("HTTP_TIMEOUT_MS", 10000); err != nil {
		return nil, err
	}
	if cfg.GeocodeCacheSize, err = getenvInt("GEOCODE_CACHE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.SeedRoutesLimit, err = getenvInt("SEED_ROUTES_LIMIT", 20); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// InitLogging sends the standard logger to stdout with microsecond
// timestamps.
func InitLogging() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

// databaseURL prefers DATABASE_URL / PG_DSN, else builds a DSN from PG*
// vars when PGDATABASE is set. Empty means no database.
func databaseURL() string {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn
	}
	db := os.Getenv("PGDATABASE")
	if db == "" {
		return ""
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return n, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
