package index

import (
	"testing"

	"bus-tracker/internal/geo"
	"bus-tracker/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRoutes() []model.BusRoute {
	return []model.BusRoute{
		{
			ID:     "route-1",
			Name:   "Centro",
			Points: []geo.LatLng{{Lat: -23.5505, Lng: -46.6333}, {Lat: -23.5614, Lng: -46.6559}},
		},
		{
			ID:       "route-2",
			Name:     "Vila Olimpia",
			Points:   []geo.LatLng{{Lat: -23.60, Lng: -46.70}},
			Geometry: []geo.LatLng{{Lat: -23.595, Lng: -46.686}, {Lat: -23.60, Lng: -46.69}},
		},
		{
			ID:     "route-far",
			Name:   "Campinas",
			Points: []geo.LatLng{{Lat: -22.9099, Lng: -47.0626}},
		},
	}
}

func TestNearbyOrdersByDistance(t *testing.T) {
	x := NewRouteIndex()
	x.Rebuild(sampleRoutes())
	assert.Equal(t, 5, x.Size())

	hits, err := x.Nearby(geo.LatLng{Lat: -23.5505, Lng: -46.6333}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "route-1", hits[0].RouteID)
	assert.Equal(t, "Centro", hits[0].Name)
	assert.InDelta(t, 0, hits[0].DistanceKm, 1e-9)
	assert.Equal(t, "route-2", hits[1].RouteID)
	assert.Greater(t, hits[1].DistanceKm, 5.0)
}

func TestNearbyUsesGeometryOverWaypoints(t *testing.T) {
	x := NewRouteIndex()
	x.Rebuild(sampleRoutes())

	// route-2's sparse waypoint is not indexed when geometry exists
	hits, err := x.Nearby(geo.LatLng{Lat: -23.60, Lng: -46.70}, 0.5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestNearbyRejectsBadRadius(t *testing.T) {
	x := NewRouteIndex()
	_, err := x.Nearby(geo.LatLng{}, 0)
	assert.Error(t, err)
}

func TestRebuildReplacesContents(t *testing.T) {
	x := NewRouteIndex()
	x.Rebuild(sampleRoutes())
	x.Rebuild(sampleRoutes()[:1])
	assert.Equal(t, 2, x.Size())

	hits, err := x.Nearby(geo.LatLng{Lat: -23.6, Lng: -46.69}, 5)
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, "route-1", h.RouteID)
	}
}

func TestEmptyIndex(t *testing.T) {
	hits, err := NewRouteIndex().Nearby(geo.LatLng{Lat: 1, Lng: 1}, 100)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestNearbyFindsRoutesEastAndWest(t *testing.T) {
	center := geo.LatLng{Lat: -23.5505, Lng: -46.6333}
	// 0.0093 degrees of longitude is about 0.95 km at this latitude.
	x := NewRouteIndex()
	x.Rebuild([]model.BusRoute{
		{ID: "east", Points: []geo.LatLng{{Lat: center.Lat, Lng: center.Lng + 0.0093}}},
		{ID: "west", Points: []geo.LatLng{{Lat: center.Lat, Lng: center.Lng - 0.0093}}},
	})

	hits, err := x.Nearby(center, 1.0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.InDelta(t, 0.95, h.DistanceKm, 0.01, h.RouteID)
	}
}
