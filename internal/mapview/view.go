package mapview

import (
	"context"
	"log"
	"sync"
	"time"

	"bus-tracker/internal/app"
	"bus-tracker/internal/geo"
	"bus-tracker/internal/geocode"
	"bus-tracker/internal/metrics"
)

var DefaultCenter = geo.LatLng{Lat: -23.5505, Lng: -46.6333}

const (
	DefaultZoom = 13
	FocusZoom   = 16
)

type Camera struct {
	Center geo.LatLng `json:"center"`
	Zoom   int        `json:"zoom"`
}

// Authoring is the slice of the controller the view forwards input to.
type Authoring interface {
	Authoring() app.AuthoringState
	AddDraftWaypoint(lat, lng float64) error
}

// AddressSearcher resolves free text into places.
type AddressSearcher interface {
	Search(ctx context.Context, text string) ([]geocode.Place, error)
}

// View holds the camera and routes map input to the controller.
type View struct {
	ctrl     Authoring
	searcher AddressSearcher
	metrics  *metrics.Collector

	mu     sync.Mutex
	camera Camera
}

// NewView builds a view; searcher and m may be nil.
func NewView(ctrl Authoring, searcher AddressSearcher, m *metrics.Collector) *View {
	return &View{
		ctrl:     ctrl,
		searcher: searcher,
		metrics:  m,
		camera:   Camera{Center: DefaultCenter, Zoom: DefaultZoom},
	}
}

func (v *View) Camera() Camera {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.camera
}

// Click appends a waypoint while authoring. Outside authoring the click
// is ignored and ok is false.
func (v *View) Click(lat, lng float64) (ok bool, err error) {
	if v.ctrl.Authoring() != app.AuthoringDrafting {
		return false, nil
	}
	if err := v.ctrl.AddDraftWaypoint(lat, lng); err != nil {
		return false, err
	}
	return true, nil
}

// Search looks up an address. Failures yield an empty list.
func (v *View) Search(ctx context.Context, text string) []geocode.Place {
	if v.searcher == nil {
		return []geocode.Place{}
	}
	start := time.Now()
	places, err := v.searcher.Search(ctx, text)
	v.metrics.ObserveCall("geocode", time.Since(start), err != nil)
	if err != nil {
		log.Printf("address search failed for %q: %v", text, err)
		return []geocode.Place{}
	}
	if places == nil {
		places = []geocode.Place{}
	}
	return places
}

// SelectResult recenters on place and, while authoring, appends it as a
// waypoint. added reports whether a waypoint was appended.
func (v *View) SelectResult(place geocode.Place) (added bool, err error) {
	v.mu.Lock()
	v.camera = Camera{Center: place.Location, Zoom: FocusZoom}
	v.mu.Unlock()
	return v.Click(place.Location.Lat, place.Location.Lng)
}
