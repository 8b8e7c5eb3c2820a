package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bus-tracker/internal/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShareTokenIsStable(t *testing.T) {
	assert.Equal(t, "meuonibus://route/route-42", ShareToken("route-42"))
	assert.Equal(t, ShareToken("route-42"), ShareToken("route-42"))
}

func TestPathPrefersGeometry(t *testing.T) {
	r := BusRoute{
		Points:   []geo.LatLng{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}},
		Geometry: []geo.LatLng{{Lat: 1, Lng: 1}, {Lat: 1.5, Lng: 1.5}, {Lat: 2, Lng: 2}},
	}
	assert.Len(t, r.Path(), 3)

	r.Geometry = nil
	assert.Len(t, r.Path(), 2)
}

func TestIDGeneratorUniqueWithinMillisecond(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	g := NewIDGenerator(func() time.Time { return fixed })

	a := g.Next("drv")
	b := g.Next("drv")
	assert.Equal(t, "drv-1700000000000", a)
	assert.Equal(t, "drv-1700000000001", b)
}

func TestSeedCatalog(t *testing.T) {
	cat := SeedCatalog()
	require.Len(t, cat.Routes, 1)
	r := cat.Routes[0]
	assert.Equal(t, DefaultFavoriteRouteID, r.ID)
	assert.Equal(t, StatusNormal, r.Status)
	assert.Equal(t, ShareToken(r.ID), r.QRCodeData)
	assert.Len(t, r.Points, 2)
	assert.Len(t, r.Geometry, 3)

	require.Len(t, cat.Drivers, 1)
	assert.Equal(t, "drv-1", cat.Drivers[0].ID)
	assert.Equal(t, DefaultCompanyID, cat.Drivers[0].CompanyID)
}

func TestParseSeedRejectsDuplicates(t *testing.T) {
	_, err := ParseSeed([]byte("routes:\n  - id: a\n  - id: a\n"))
	assert.Error(t, err)

	_, err = ParseSeed([]byte("routes:\n  - name: no id\n"))
	assert.Error(t, err)

	_, err = ParseSeed([]byte("routes: [[["))
	assert.Error(t, err)

	_, err = ParseSeed([]byte("drivers:\n  - name: anonymous\n"))
	assert.Error(t, err)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yml")
	doc := "routes:\n  - id: r-a\n    name: A\n    status: TRAFFIC\n    points:\n      - {lat: 1, lng: 2}\n      - {lat: 3, lng: 4}\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cat, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, cat.Routes, 1)
	assert.Equal(t, StatusTraffic, cat.Routes[0].Status)
	assert.Equal(t, geo.LatLng{Lat: 3, Lng: 4}, cat.Routes[0].Points[1])
	assert.Empty(t, cat.Drivers)
}

func TestUserFavoritesClone(t *testing.T) {
	u := UserProfile{FavoriteRoutes: []string{"a"}}
	c := u.Clone()
	c.FavoriteRoutes[0] = "b"
	assert.True(t, u.HasFavorite("a"))
	assert.False(t, u.HasFavorite("b"))
}
