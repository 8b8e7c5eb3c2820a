package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bus-tracker/internal/app"
	"bus-tracker/internal/config"
	"bus-tracker/internal/db"
	"bus-tracker/internal/feed"
	"bus-tracker/internal/geocode"
	"bus-tracker/internal/mapview"
	"bus-tracker/internal/metrics"
	"bus-tracker/internal/model"
	"bus-tracker/internal/narrator"
	"bus-tracker/internal/publisher"
	"bus-tracker/internal/routing"
	"bus-tracker/internal/server"

	"github.com/spf13/cobra"
)

const (
	geocodeCacheTTL = 10 * time.Minute
	shutdownTimeout = 5 * time.Second
)

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if routesFile != "" {
		cfg.RoutesFile = routesFile
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.TickInterval())
		srv := mcol.Serve(cfg.MetricsAddr)
		defer shutdown(srv)
	}

	catalog, err := loadCatalog(ctx, cfg)
	if err != nil {
		return err
	}

	hub := server.NewHub()
	defer hub.Close()
	fd := feed.New(nil)
	sinks := publisher.Multi{hub, fd}

	// NATS is optional; the in-process sinks work without it.
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Printf("nats disabled: %v", err)
		} else {
			defer pub.Close()
			sinks = append(sinks, pub)
		}
	}

	var gen narrator.Generator
	if cfg.GeminiAPIKey != "" {
		g, err := narrator.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Printf("incident narrator disabled: %v", err)
		} else {
			gen = g
		}
	} else {
		log.Printf("GEMINI_API_KEY not set; incidents use the fallback notice")
	}

	ctrl := app.New(app.Options{
		Geometry:     routing.NewClient(cfg.OSRMURL, cfg.HTTPTimeout()),
		Narrator:     narrator.New(gen),
		Sink:         sinks,
		Metrics:      mcol,
		TickInterval: cfg.TickInterval(),
		Catalog:      catalog,
	})
	defer ctrl.Close()

	searcher := geocode.NewClient(geocode.Options{
		BaseURL:   cfg.NominatimURL,
		Language:  cfg.GeocodeLanguage,
		Timeout:   cfg.HTTPTimeout(),
		CacheSize: cfg.GeocodeCacheSize,
		CacheTTL:  geocodeCacheTTL,
	})

	api := server.New(server.Options{
		Controller: ctrl,
		View:       mapview.NewView(ctrl, searcher, mcol),
		Feed:       fd,
		Hub:        hub,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("api listening on %s (%d routes, %d drivers)", cfg.HTTPAddr, len(catalog.Routes), len(catalog.Drivers))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Block until context cancelled or the listener fails
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	shutdown(httpSrv)
	log.Println("shutdown complete")
	return nil
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// loadCatalog reads the YAML catalog (file or embedded) and, when a
// database is configured, appends bus routes imported from GTFS. Import
// failures are logged and the YAML catalog is used alone.
func loadCatalog(ctx context.Context, cfg *config.Config) (model.Catalog, error) {
	catalog := model.SeedCatalog()
	if cfg.RoutesFile != "" {
		c, err := model.LoadSeedFile(cfg.RoutesFile)
		if err != nil {
			return model.Catalog{}, err
		}
		catalog = c
	}
	if cfg.DatabaseURL == "" || cfg.SeedRoutesLimit == 0 {
		return catalog, nil
	}

	imported, err := importRoutes(ctx, cfg)
	if err != nil {
		log.Printf("gtfs import skipped: %v", err)
		return catalog, nil
	}
	seen := make(map[string]bool, len(catalog.Routes))
	for _, r := range catalog.Routes {
		seen[r.ID] = true
	}
	added := 0
	for _, r := range imported {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		catalog.Routes = append(catalog.Routes, r)
		added++
	}
	log.Printf("imported %d gtfs bus routes", added)
	return catalog, nil
}

func importRoutes(ctx context.Context, cfg *config.Config) ([]model.BusRoute, error) {
	dsn, err := db.ResolveCityDSN(ctx, cfg.DatabaseURL, cfg.City)
	if err != nil {
		return nil, err
	}
	if cfg.City != "" {
		log.Printf("using latest import for city %q", cfg.City)
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()
	if err := db.Ping(ctx, sqlDB); err != nil {
		return nil, err
	}
	return db.FetchSeedRoutes(ctx, sqlDB, cfg.SeedRoutesLimit)
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
