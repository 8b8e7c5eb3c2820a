// Package mapview turns application state into a drawable GeoJSON scene
// and handles map interaction: clicks, address search and camera moves.
package mapview

import (
	"bus-tracker/internal/app"
	"bus-tracker/internal/geo"
	"bus-tracker/internal/model"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	ColorRoute    = "#60a5fa"
	ColorOffRoute = "#f87171"
	ColorPreview  = "#fbbf24"
	ColorStart    = "#34d399"
	ColorWaypoint = "#fbbf24"

	RouteWeight   = 6
	PreviewWeight = 3
	PreviewDash   = "5, 10"
)

// Feature kinds, stored in the "kind" property.
const (
	KindRoute    = "route"
	KindPreview  = "preview"
	KindWaypoint = "waypoint"
	KindBus      = "bus"
)

// Input is everything Render needs.
type Input struct {
	Route     *model.BusRoute
	Position  *geo.LatLng
	Next      *geo.LatLng
	Authoring app.AuthoringState
	Waypoints []geo.LatLng
}

// InputFromSnapshot picks the rendering input out of a state snapshot.
func InputFromSnapshot(s app.Snapshot) Input {
	return Input{
		Route:     s.ActiveRoute(),
		Position:  s.Session.BusPosition,
		Next:      s.Session.NextPoint,
		Authoring: s.Session.Authoring,
		Waypoints: s.Session.Draft.Waypoints,
	}
}

type Overlays struct {
	// Optimizing blocks interaction while route geometry is computed.
	Optimizing     bool `json:"optimizing"`
	OffRouteBanner bool `json:"offRouteBanner"`
}

type Scene struct {
	Features *geojson.FeatureCollection `json:"features"`
	Overlays Overlays                   `json:"overlays"`
}

// Render builds the scene. While authoring, the committed route and the
// bus are hidden and the draft is drawn with straight segments.
func Render(in Input) Scene {
	fc := geojson.NewFeatureCollection()
	authoring := in.Authoring.Active()

	if authoring {
		if len(in.Waypoints) > 1 {
			f := geojson.NewFeature(lineString(in.Waypoints))
			f.Properties["kind"] = KindPreview
			f.Properties["color"] = ColorPreview
			f.Properties["weight"] = PreviewWeight
			f.Properties["dashArray"] = PreviewDash
			fc.Append(f)
		}
		for i, p := range in.Waypoints {
			f := geojson.NewFeature(point(p))
			f.Properties["kind"] = KindWaypoint
			f.Properties["index"] = i
			f.Properties["start"] = i == 0
			if i == 0 {
				f.Properties["color"] = ColorStart
			} else {
				f.Properties["color"] = ColorWaypoint
			}
			fc.Append(f)
		}
	} else if in.Route != nil {
		if path := in.Route.Path(); len(path) > 0 {
			color := ColorRoute
			if in.Route.IsOffRoute {
				color = ColorOffRoute
			}
			f := geojson.NewFeature(lineString(path))
			f.ID = in.Route.ID
			f.Properties["kind"] = KindRoute
			f.Properties["routeId"] = in.Route.ID
			f.Properties["name"] = in.Route.Name
			f.Properties["status"] = string(in.Route.Status)
			f.Properties["color"] = color
			f.Properties["weight"] = RouteWeight
			fc.Append(f)
		}
	}

	if !authoring && in.Position != nil {
		bearing := 0.0
		if in.Next != nil {
			bearing = geo.Bearing(*in.Position, *in.Next)
		}
		f := geojson.NewFeature(point(*in.Position))
		f.Properties["kind"] = KindBus
		f.Properties["bearing"] = bearing
		if in.Route != nil {
			f.Properties["routeId"] = in.Route.ID
		}
		fc.Append(f)
	}

	return Scene{
		Features: fc,
		Overlays: Overlays{
			Optimizing:     in.Authoring == app.AuthoringOptimizing,
			OffRouteBanner: !authoring && in.Route != nil && in.Route.IsOffRoute,
		},
	}
}

// GeoJSON orders coordinates as [lng, lat].
func point(p geo.LatLng) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

func lineString(path []geo.LatLng) orb.LineString {
	ls := make(orb.LineString, len(path))
	for i, p := range path {
		ls[i] = point(p)
	}
	return ls
}
