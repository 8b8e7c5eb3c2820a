package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"bus-tracker/internal/config"
	"bus-tracker/internal/geo"
	"bus-tracker/internal/geocode"
	"bus-tracker/internal/routing"

	"github.com/spf13/cobra"
)

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	client := geocode.NewClient(geocode.Options{
		BaseURL:  cfg.NominatimURL,
		Language: cfg.GeocodeLanguage,
		Timeout:  cfg.HTTPTimeout(),
	})
	places, err := client.Search(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(places)
	}
	for _, p := range places {
		fmt.Printf("%.6f,%.6f\t%s\n", p.Location.Lat, p.Location.Lng, p.Label)
	}
	return nil
}

func runDensify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pts := make([]geo.LatLng, 0, len(args))
	for _, a := range args {
		p, err := parsePoint(a)
		if err != nil {
			return err
		}
		pts = append(pts, p)
	}
	path, err := routing.NewClient(cfg.OSRMURL, cfg.HTTPTimeout()).Densify(cmd.Context(), pts)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(path)
	}
	for _, p := range path {
		fmt.Printf("%.6f,%.6f\n", p.Lat, p.Lng)
	}
	fmt.Printf("%d points, %.0f m\n", len(path), geo.PathLength(path))
	return nil
}

func runBearing(cmd *cobra.Command, args []string) error {
	vals := make([]float64, len(args))
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return fmt.Errorf("invalid coordinate %q", a)
		}
		vals[i] = f
	}
	a := geo.LatLng{Lat: vals[0], Lng: vals[1]}
	b := geo.LatLng{Lat: vals[2], Lng: vals[3]}
	fmt.Printf("%.2f\n", geo.Bearing(a, b))
	return nil
}

// parsePoint reads "lat,lng".
func parsePoint(s string) (geo.LatLng, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return geo.LatLng{}, fmt.Errorf("invalid point %q, want lat,lng", s)
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return geo.LatLng{}, fmt.Errorf("invalid point %q, want lat,lng", s)
	}
	return geo.LatLng{Lat: lat, Lng: lng}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
