package routing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bus-tracker/internal/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var waypoints = []geo.LatLng{{Lat: -23.59, Lng: -46.68}, {Lat: -23.61, Lng: -46.70}}

func TestDensifyTransposesGeoJSON(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "full", r.URL.Query().Get("overview"))
		assert.Equal(t, "geojson", r.URL.Query().Get("geometries"))
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"geometry":{"coordinates":[[-46.68,-23.59],[-46.69,-23.6],[-46.7,-23.61]]}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	path, err := c.Densify(context.Background(), waypoints)
	require.NoError(t, err)

	assert.Equal(t, "/route/v1/driving/-46.68,-23.59;-46.7,-23.61", gotPath)
	require.Len(t, path, 3)
	assert.Equal(t, geo.LatLng{Lat: -23.59, Lng: -46.68}, path[0])
	assert.Equal(t, geo.LatLng{Lat: -23.6, Lng: -46.69}, path[1])
	assert.Equal(t, geo.LatLng{Lat: -23.61, Lng: -46.7}, path[2])
}

func TestDensifyUpstreamCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"NoRoute","message":"Impossible route between points"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Densify(context.Background(), waypoints)
	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, "NoRoute", upErr.Code)
}

func TestDensifyEmptyRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Densify(context.Background(), waypoints)
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestDensifyNonJSONFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Densify(context.Background(), waypoints)
	assert.Error(t, err)
}

func TestDensifyTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewClient(srv.URL, time.Second).Densify(context.Background(), waypoints)
	assert.Error(t, err)
}

func TestDensifyShortInputSkipsRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	one := []geo.LatLng{{Lat: 1, Lng: 1}}
	path, err := NewClient(srv.URL, time.Second).Densify(context.Background(), one)
	require.NoError(t, err)
	assert.Equal(t, one, path)
	assert.Zero(t, atomic.LoadInt32(&calls))
}
