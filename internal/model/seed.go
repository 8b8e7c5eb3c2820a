package model

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed seed_routes.yml
var defaultSeed []byte

// DefaultCompanyID owns the seeded catalog and every demo profile.
const DefaultCompanyID = "comp-1"

// DefaultFavoriteRouteID is given to every passenger on login.
const DefaultFavoriteRouteID = "route-1"

// Catalog is the initial content of the route and driver catalogs.
type Catalog struct {
	Routes  []BusRoute      `yaml:"routes"`
	Drivers []DriverProfile `yaml:"drivers"`
}

// ParseSeed decodes a YAML catalog. Missing route status defaults to
// NORMAL and the share token is always derived from the id.
func ParseSeed(data []byte) (Catalog, error) {
	var doc Catalog
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Catalog{}, fmt.Errorf("parse seed catalog: %w", err)
	}
	seen := make(map[string]bool, len(doc.Routes))
	for i := range doc.Routes {
		r := &doc.Routes[i]
		if r.ID == "" {
			return Catalog{}, fmt.Errorf("seed route %d: missing id", i)
		}
		if seen[r.ID] {
			return Catalog{}, fmt.Errorf("seed route %q: duplicate id", r.ID)
		}
		seen[r.ID] = true
		if r.Status == "" {
			r.Status = StatusNormal
		}
		r.QRCodeData = ShareToken(r.ID)
	}
	for i, d := range doc.Drivers {
		if d.ID == "" {
			return Catalog{}, fmt.Errorf("seed driver %d: missing id", i)
		}
		if d.CompanyID == "" {
			doc.Drivers[i].CompanyID = DefaultCompanyID
		}
	}
	return doc, nil
}

// LoadSeedFile reads a YAML catalog from disk.
func LoadSeedFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}
	return ParseSeed(data)
}

// SeedCatalog returns the embedded demo catalog.
func SeedCatalog() Catalog {
	cat, err := ParseSeed(defaultSeed)
	if err != nil {
		panic(err)
	}
	return cat
}
