package main

import (
	"fmt"
	"os"

	"bus-tracker/internal/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bustracker",
	Short: "Bus route authoring and live tracking server",
	Long:  `Serves the bus tracking API, the simulated bus stream and GTFS-Realtime feeds, plus a few offline helpers for the external collaborators.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and simulation",
	RunE:  runServe,
}

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Look up an address through Nominatim",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var densifyCmd = &cobra.Command{
	Use:   "densify <lat,lng> <lat,lng> [lat,lng...]",
	Short: "Fetch road-following geometry for waypoints through OSRM",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runDensify,
}

var bearingCmd = &cobra.Command{
	Use:   "bearing <lat1> <lng1> <lat2> <lng2>",
	Short: "Print the initial compass bearing between two points",
	Args:  cobra.ExactArgs(4),
	RunE:  runBearing,
}

var (
	routesFile string
	jsonOutput bool
)

func init() {
	serveCmd.Flags().StringVar(&routesFile, "routes", "", "YAML catalog to load instead of the embedded one (overrides ROUTES_FILE)")
	densifyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the path as JSON")
	searchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	rootCmd.AddCommand(serveCmd, searchCmd, densifyCmd, bearingCmd)
}

func main() {
	config.InitLogging()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
