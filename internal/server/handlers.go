package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"bus-tracker/internal/app"
	"bus-tracker/internal/feed"
	"bus-tracker/internal/geo"
	"bus-tracker/internal/geocode"
	"bus-tracker/internal/mapview"
	"bus-tracker/internal/model"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/gorilla/mux"
)

const defaultNearbyRadiusKm = 1.0

type loginRequest struct {
	Role string `json:"role" validate:"required,oneof=COMPANY DRIVER USER"`
}

type startDraftRequest struct {
	RouteID string `json:"routeId"`
}

type draftNameRequest struct {
	Name string `json:"name"`
}

type pointRequest struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

type placeRequest struct {
	Label string  `json:"label"`
	Lat   float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng   float64 `json:"lng" validate:"gte=-180,lte=180"`
}

type driverRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type incidentRequest struct {
	Type        string `json:"type" validate:"required"`
	Description string `json:"description"`
}

type offRouteRequest struct {
	OffRoute bool `json:"offRoute"`
}

type assignDriverRequest struct {
	DriverID string `json:"driverId"`
}

type simulationRequest struct {
	Running bool `json:"running"`
}

type driverResult struct {
	Added  bool                 `json:"added"`
	Driver *model.DriverProfile `json:"driver,omitempty"`
}

type clickResult struct {
	Added bool `json:"added"`
}

type selectResult struct {
	Added  bool           `json:"added"`
	Camera mapview.Camera `json:"camera"`
}

type sceneResult struct {
	Scene  mapview.Scene  `json:"scene"`
	Camera mapview.Camera `json:"camera"`
}

type shareResult struct {
	RouteID string `json:"routeId"`
	Token   string `json:"token"`
}

type simulationResult struct {
	Running bool `json:"running"`
}

type alertResult struct {
	Alert string `json:"alert"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, err := s.ctrl.Login(model.Role(req.Role))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Logout()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Routes())
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	route, ok := s.ctrl.Route(mux.Vars(r)["id"])
	if !ok {
		fail(w, app.ErrRouteNotFound)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(w, http.StatusBadRequest, errors.New("lat and lng are required numbers"))
		return
	}
	radius := defaultNearbyRadiusKm
	if v := q.Get("radius_km"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("radius_km must be a number"))
			return
		}
		radius = f
	}
	hits, err := s.index.Nearby(geo.LatLng{Lat: lat, Lng: lng}, radius)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleSelectRoute(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.SelectRoute(mux.Vars(r)["id"]); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot().Session)
}

func (s *Server) handleOffRoute(w http.ResponseWriter, r *http.Request) {
	var req offRouteRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.ctrl.SetOffRoute(id, req.OffRoute); err != nil {
		fail(w, err)
		return
	}
	route, _ := s.ctrl.Route(id)
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleAssignDriver(w http.ResponseWriter, r *http.Request) {
	var req assignDriverRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.ctrl.AssignDriver(id, req.DriverID); err != nil {
		fail(w, err)
		return
	}
	route, _ := s.ctrl.Route(id)
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	route, ok := s.ctrl.Route(mux.Vars(r)["id"])
	if !ok {
		fail(w, app.ErrRouteNotFound)
		return
	}
	writeJSON(w, http.StatusOK, shareResult{RouteID: route.ID, Token: route.QRCodeData})
}

func (s *Server) handleStartDraft(w http.ResponseWriter, r *http.Request) {
	var req startDraftRequest
	// The body is optional: no body starts a new route.
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	draft, err := s.ctrl.StartRouteDraft(req.RouteID)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *Server) handleDraftName(w http.ResponseWriter, r *http.Request) {
	var req draftNameRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ctrl.SetDraftName(req.Name); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot().Session.Draft)
}

func (s *Server) handleDraftWaypoint(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ctrl.AddDraftWaypoint(req.Lat, req.Lng); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot().Session.Draft)
}

func (s *Server) handleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.DiscardRouteDraft(); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCommitDraft(w http.ResponseWriter, r *http.Request) {
	route, err := s.ctrl.CommitRouteDraft(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	s.reindex()
	writeJSON(w, http.StatusCreated, route)
}

func (s *Server) handleDrivers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Drivers())
}

func (s *Server) handleAddDriver(w http.ResponseWriter, r *http.Request) {
	var req driverRequest
	if !s.decode(w, r, &req) {
		return
	}
	d, ok := s.ctrl.AddDriver(req.Name, req.Email)
	if !ok {
		writeJSON(w, http.StatusOK, driverResult{})
		return
	}
	writeJSON(w, http.StatusCreated, driverResult{Added: true, Driver: &d})
}

func (s *Server) handleIncident(w http.ResponseWriter, r *http.Request) {
	var req incidentRequest
	if !s.decode(w, r, &req) {
		return
	}
	alert, err := s.ctrl.ReportIncident(r.Context(), model.IncidentType(req.Type), req.Description)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alertResult{Alert: alert})
}

func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	s.ctrl.DismissAlert()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSimulation(w http.ResponseWriter, r *http.Request) {
	var req simulationRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ctrl.ToggleSimulation(req.Running); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, simulationResult{Running: s.ctrl.SimulationActive()})
}

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	routes, err := s.ctrl.FavoriteRoutes()
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.AddFavorite(mux.Vars(r)["id"]); err != nil {
		fail(w, err)
		return
	}
	s.handleFavorites(w, r)
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.RemoveFavorite(mux.Vars(r)["id"]); err != nil {
		fail(w, err)
		return
	}
	s.handleFavorites(w, r)
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	scene := mapview.Render(mapview.InputFromSnapshot(s.ctrl.Snapshot()))
	writeJSON(w, http.StatusOK, sceneResult{Scene: scene, Camera: s.view.Camera()})
}

func (s *Server) handleMapClick(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if !s.decode(w, r, &req) {
		return
	}
	added, err := s.view.Click(req.Lat, req.Lng)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clickResult{Added: added})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view.Search(r.Context(), r.URL.Query().Get("q")))
}

func (s *Server) handleSearchSelect(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if !s.decode(w, r, &req) {
		return
	}
	place := geocode.Place{Label: req.Label, Location: geo.LatLng{Lat: req.Lat, Lng: req.Lng}}
	added, err := s.view.SelectResult(place)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, selectResult{Added: added, Camera: s.view.Camera()})
}

func (s *Server) handleVehiclePositions(w http.ResponseWriter, r *http.Request) {
	s.writeFeed(w, s.feed.VehiclePositions(s.ctrl.Snapshot()))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	s.writeFeed(w, s.feed.Alerts(s.ctrl.Snapshot()))
}

func (s *Server) writeFeed(w http.ResponseWriter, msg *gtfsrtpb.FeedMessage) {
	b, err := feed.Marshal(msg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", feed.ContentType)
	if _, err := w.Write(b); err != nil {
		log.Printf("write gtfs-rt feed: %v", err)
	}
}
