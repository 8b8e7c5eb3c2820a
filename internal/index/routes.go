// Package index answers "which routes pass near me" with an R-tree over
// the points of every route path.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"bus-tracker/internal/geo"
	"bus-tracker/internal/model"

	"github.com/dhconnelly/rtreego"
)

const (
	tolerance   = 0.0001
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
	earthRadius = 6371.0 // km
)

// pathPoint is one indexed vertex of a route path.
type pathPoint struct {
	routeID string
	pos     geo.LatLng
	rect    *rtreego.Rect
}

func (p *pathPoint) Bounds() *rtreego.Rect {
	return p.rect
}

// Hit is a route found near a query point.
type Hit struct {
	RouteID    string  `json:"routeId"`
	Name       string  `json:"name"`
	DistanceKm float64 `json:"distanceKm"`
}

// RouteIndex is safe for concurrent use. Rebuild replaces its contents.
type RouteIndex struct {
	mu     sync.RWMutex
	tree   *rtreego.Rtree
	names  map[string]string
	points int
}

func NewRouteIndex() *RouteIndex {
	return &RouteIndex{
		tree:  rtreego.NewTree(dimensions, minChildren, maxChildren),
		names: map[string]string{},
	}
}

// Rebuild indexes the path of every route, dropping what was there.
func (x *RouteIndex) Rebuild(routes []model.BusRoute) {
	tree := rtreego.NewTree(dimensions, minChildren, maxChildren)
	names := make(map[string]string, len(routes))
	count := 0
	for i := range routes {
		r := &routes[i]
		names[r.ID] = r.Name
		for _, p := range r.Path() {
			tree.Insert(&pathPoint{
				routeID: r.ID,
				pos:     p,
				rect:    rtreego.Point{p.Lat, p.Lng}.ToRect(tolerance),
			})
			count++
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.tree = tree
	x.names = names
	x.points = count
}

// Size returns the number of indexed path points.
func (x *RouteIndex) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.points
}

// Nearby returns the routes with at least one path point within radiusKm
// of center, closest first.
func (x *RouteIndex) Nearby(center geo.LatLng, radiusKm float64) ([]Hit, error) {
	if radiusKm <= 0 {
		return nil, fmt.Errorf("radius must be positive, got %v", radiusKm)
	}
	deg := (radiusKm / earthRadius) * (180 / math.Pi)
	// A degree of longitude shrinks with cos(lat).
	lngDeg := deg / math.Max(math.Cos(center.Lat*math.Pi/180), 1e-6)
	bounds, err := rtreego.NewRect(
		rtreego.Point{center.Lat - deg, center.Lng - lngDeg},
		[]float64{2 * deg, 2 * lngDeg},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid radius search: %w", err)
	}

	x.mu.RLock()
	results := x.tree.SearchIntersect(bounds)
	names := x.names
	x.mu.RUnlock()

	best := map[string]float64{}
	for _, res := range results {
		item, ok := res.(*pathPoint)
		if !ok {
			continue
		}
		d := geo.Haversine(center, item.pos) / 1000
		if d > radiusKm {
			continue
		}
		if cur, seen := best[item.routeID]; !seen || d < cur {
			best[item.routeID] = d
		}
	}

	hits := make([]Hit, 0, len(best))
	for id, d := range best {
		hits = append(hits, Hit{RouteID: id, Name: names[id], DistanceKm: d})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceKm != hits[j].DistanceKm {
			return hits[i].DistanceKm < hits[j].DistanceKm
		}
		return hits[i].RouteID < hits[j].RouteID
	})
	return hits, nil
}
