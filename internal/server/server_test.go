package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bus-tracker/internal/app"
	"bus-tracker/internal/feed"
	"bus-tracker/internal/geo"
	"bus-tracker/internal/mapview"
	"bus-tracker/internal/model"
	"bus-tracker/internal/narrator"
	"bus-tracker/internal/publisher"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

type downGeometry struct{}

func (downGeometry) Densify(ctx context.Context, pts []geo.LatLng) ([]geo.LatLng, error) {
	return nil, errors.New("osrm unavailable")
}

type testEnv struct {
	srv  *httptest.Server
	ctrl *app.Controller
	hub  *Hub
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	hub := NewHub()
	fd := feed.New(nil)
	ctrl := app.New(app.Options{
		Geometry:     downGeometry{},
		Sink:         publisher.Multi{hub, fd},
		TickInterval: time.Hour,
		Catalog:      model.SeedCatalog(),
	})
	s := New(Options{Controller: ctrl, Hub: hub, Feed: fd, View: mapview.NewView(ctrl, nil, nil)})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
		ctrl.Close()
	})
	return &testEnv{srv: srv, ctrl: ctrl, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out APIResponse[T]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Data
}

func (e *testEnv) login(t *testing.T, role model.Role) {
	t.Helper()
	resp := e.do(t, "POST", "/api/session", map[string]string{"role": string(role)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthAndState(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, "GET", "/api/state", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeData[app.Snapshot](t, resp)
	assert.Equal(t, app.ViewLogin, snap.Session.View)
	assert.Len(t, snap.Routes, 1)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, "POST", "/api/session", map[string]string{"role": "ADMIN"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, "POST", "/api/session", map[string]string{"role": "USER"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := decodeData[model.UserProfile](t, resp)
	assert.Equal(t, []string{model.DefaultFavoriteRouteID}, user.FavoriteRoutes)

	resp = e.do(t, "DELETE", "/api/session", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = e.do(t, "GET", "/api/favorites", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBadJSON(t *testing.T) {
	e := newEnv(t)
	req, err := http.NewRequest("POST", e.srv.URL+"/api/session", strings.NewReader("{"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthoringFlowWithGeometryFallback(t *testing.T) {
	e := newEnv(t)
	e.login(t, model.RoleCompany)

	resp := e.do(t, "POST", "/api/draft", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = e.do(t, "PUT", "/api/draft/name", map[string]string{"name": "Linha Verde"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = e.do(t, "POST", "/api/draft/waypoints", map[string]float64{"lat": -23.55, "lng": -46.63})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, "POST", "/api/draft/commit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var apiErr errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	assert.Equal(t, "waypoints", apiErr.Field)

	// a map click while drafting lands in the draft
	resp = e.do(t, "POST", "/api/map/click", map[string]float64{"lat": -23.56, "lng": -46.64})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeData[clickResult](t, resp).Added)

	resp = e.do(t, "PUT", "/api/simulation", map[string]bool{"running": true})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, "POST", "/api/draft/commit", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	route := decodeData[model.BusRoute](t, resp)
	assert.Equal(t, route.Points, route.Geometry)
	assert.Equal(t, model.ShareToken(route.ID), route.QRCodeData)

	resp = e.do(t, "GET", "/api/state", nil)
	assert.Equal(t, route.ID, decodeData[app.Snapshot](t, resp).Session.ActiveRouteID)

	resp = e.do(t, "GET", "/api/routes/nearby?lat=-23.56&lng=-46.64&radius_km=0.5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	hits := decodeData[[]struct {
		RouteID string `json:"routeId"`
	}](t, resp)
	require.NotEmpty(t, hits)
	assert.Equal(t, route.ID, hits[0].RouteID)

	resp = e.do(t, "GET", "/api/routes/"+route.ID+"/share", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "meuonibus://route/"+route.ID, decodeData[shareResult](t, resp).Token)
}

func TestMapClickIgnoredOutsideAuthoring(t *testing.T) {
	e := newEnv(t)
	e.login(t, model.RoleDriver)
	resp := e.do(t, "POST", "/api/map/click", map[string]float64{"lat": 1, "lng": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeData[clickResult](t, resp).Added)

	resp = e.do(t, "GET", "/api/map/scene", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Data struct {
			Camera mapview.Camera `json:"camera"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, mapview.DefaultZoom, body.Data.Camera.Zoom)
}

func TestSearchSelectRecenters(t *testing.T) {
	e := newEnv(t)
	e.login(t, model.RoleUser)

	resp := e.do(t, "GET", "/api/map/search?q=pa", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeData[[]any](t, resp))

	resp = e.do(t, "POST", "/api/map/search/select", map[string]any{"label": "Paulista", "lat": -23.56, "lng": -46.65})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeData[selectResult](t, resp)
	assert.False(t, res.Added)
	assert.Equal(t, mapview.FocusZoom, res.Camera.Zoom)
}

func TestIncidentFallsBackAndMarksDelayed(t *testing.T) {
	e := newEnv(t)
	e.login(t, model.RoleDriver)

	resp := e.do(t, "POST", "/api/incidents", map[string]string{"type": "ACCIDENT", "description": "colisão"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, narrator.FallbackNotice, decodeData[alertResult](t, resp).Alert)

	resp = e.do(t, "GET", "/api/routes/route-1", nil)
	assert.Equal(t, model.StatusDelayed, decodeData[model.BusRoute](t, resp).Status)

	resp = e.do(t, "GET", "/gtfs-rt/alerts.pb", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, feed.ContentType, resp.Header.Get("Content-Type"))
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var msg gtfsrtpb.FeedMessage
	require.NoError(t, proto.Unmarshal(b, &msg))
	require.Len(t, msg.GetEntity(), 1)
	assert.Equal(t, gtfsrtpb.Alert_ACCIDENT, msg.GetEntity()[0].GetAlert().GetCause())

	resp = e.do(t, "POST", "/api/incidents", map[string]string{"type": "FIRE"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestFavoritesEndpoints(t *testing.T) {
	e := newEnv(t)
	e.login(t, model.RoleUser)

	resp := e.do(t, "DELETE", "/api/favorites/route-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeData[[]model.BusRoute](t, resp))

	resp = e.do(t, "POST", "/api/favorites/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, "POST", "/api/favorites/route-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeData[[]model.BusRoute](t, resp), 1)
}

func TestDriversEndpoints(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, "POST", "/api/drivers", map[string]string{"name": "", "email": "a@b.c"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeData[driverResult](t, resp).Added)

	resp = e.do(t, "POST", "/api/drivers", map[string]string{"name": "Ana", "email": "ana@bus.com"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	res := decodeData[driverResult](t, resp)
	require.NotNil(t, res.Driver)
	assert.True(t, strings.HasPrefix(res.Driver.ID, "drv-"))

	resp = e.do(t, "PUT", "/api/routes/route-1/driver", map[string]string{"driverId": res.Driver.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, res.Driver.ID, decodeData[model.BusRoute](t, resp).AssignedDriverID)

	resp = e.do(t, "GET", "/api/drivers", nil)
	assert.Len(t, decodeData[[]model.DriverProfile](t, resp), 2)
}

func TestOffRouteAndUnknownRoute(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, "PUT", "/api/routes/route-1/off-route", map[string]bool{"offRoute": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeData[model.BusRoute](t, resp).IsOffRoute)

	resp = e.do(t, "GET", "/api/routes/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamAndVehicleFeed(t *testing.T) {
	e := newEnv(t)
	e.login(t, model.RoleDriver)

	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return e.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	resp := e.do(t, "PUT", "/api/simulation", map[string]bool{"running": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeData[simulationResult](t, resp).Running)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Type string                    `json:"type"`
		Data publisher.PositionMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "position", frame.Type)
	assert.Equal(t, "route-1", frame.Data.RouteID)

	resp = e.do(t, "GET", "/gtfs-rt/vehicle-positions.pb", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var msg gtfsrtpb.FeedMessage
	require.NoError(t, proto.Unmarshal(b, &msg))
	require.Len(t, msg.GetEntity(), 1)
	assert.Equal(t, "route-1", msg.GetEntity()[0].GetVehicle().GetTrip().GetRouteId())
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&app.ValidationError{Field: "name"}, http.StatusUnprocessableEntity},
		{app.ErrNotLoggedIn, http.StatusUnauthorized},
		{app.ErrRouteNotFound, http.StatusNotFound},
		{app.ErrDriverNotFound, http.StatusNotFound},
		{app.ErrAuthoringActive, http.StatusConflict},
		{app.ErrDraftAbandoned, http.StatusConflict},
		{app.ErrInvalidRole, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}
