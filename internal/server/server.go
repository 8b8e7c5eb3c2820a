// Package server exposes the controller over a JSON HTTP API, a
// websocket event stream and GTFS-Realtime feeds.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"bus-tracker/internal/app"
	"bus-tracker/internal/feed"
	"bus-tracker/internal/index"
	"bus-tracker/internal/mapview"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// APIResponse wraps every successful JSON body.
type APIResponse[T any] struct {
	Data T `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type Options struct {
	Controller *app.Controller
	View       *mapview.View
	Index      *index.RouteIndex
	Feed       *feed.Feed
	Hub        *Hub
}

type Server struct {
	ctrl     *app.Controller
	view     *mapview.View
	index    *index.RouteIndex
	feed     *feed.Feed
	hub      *Hub
	validate *validator.Validate
}

func New(opt Options) *Server {
	s := &Server{
		ctrl:     opt.Controller,
		view:     opt.View,
		index:    opt.Index,
		feed:     opt.Feed,
		hub:      opt.Hub,
		validate: validator.New(),
	}
	if s.index == nil {
		s.index = index.NewRouteIndex()
	}
	if s.feed == nil {
		s.feed = feed.New(nil)
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	if s.view == nil {
		s.view = mapview.NewView(s.ctrl, nil, nil)
	}
	s.reindex()
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.Use(jsonHeaders)
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/state", s.handleState).Methods("GET")

	api.HandleFunc("/session", s.handleLogin).Methods("POST")
	api.HandleFunc("/session", s.handleLogout).Methods("DELETE")

	api.HandleFunc("/routes", s.handleRoutes).Methods("GET")
	api.HandleFunc("/routes/nearby", s.handleNearby).Methods("GET")
	api.HandleFunc("/routes/{id}", s.handleRoute).Methods("GET")
	api.HandleFunc("/routes/{id}/select", s.handleSelectRoute).Methods("POST")
	api.HandleFunc("/routes/{id}/off-route", s.handleOffRoute).Methods("PUT")
	api.HandleFunc("/routes/{id}/driver", s.handleAssignDriver).Methods("PUT")
	api.HandleFunc("/routes/{id}/share", s.handleShare).Methods("GET")

	api.HandleFunc("/draft", s.handleStartDraft).Methods("POST")
	api.HandleFunc("/draft", s.handleDiscardDraft).Methods("DELETE")
	api.HandleFunc("/draft/name", s.handleDraftName).Methods("PUT")
	api.HandleFunc("/draft/waypoints", s.handleDraftWaypoint).Methods("POST")
	api.HandleFunc("/draft/commit", s.handleCommitDraft).Methods("POST")

	api.HandleFunc("/drivers", s.handleDrivers).Methods("GET")
	api.HandleFunc("/drivers", s.handleAddDriver).Methods("POST")

	api.HandleFunc("/incidents", s.handleIncident).Methods("POST")
	api.HandleFunc("/alert", s.handleDismissAlert).Methods("DELETE")
	api.HandleFunc("/simulation", s.handleSimulation).Methods("PUT")

	api.HandleFunc("/favorites", s.handleFavorites).Methods("GET")
	api.HandleFunc("/favorites/{id}", s.handleAddFavorite).Methods("POST")
	api.HandleFunc("/favorites/{id}", s.handleRemoveFavorite).Methods("DELETE")

	api.HandleFunc("/map/scene", s.handleScene).Methods("GET")
	api.HandleFunc("/map/click", s.handleMapClick).Methods("POST")
	api.HandleFunc("/map/search", s.handleSearch).Methods("GET")
	api.HandleFunc("/map/search/select", s.handleSearchSelect).Methods("POST")

	r.Handle("/api/stream", s.hub).Methods("GET")
	r.HandleFunc("/gtfs-rt/vehicle-positions.pb", s.handleVehiclePositions).Methods("GET")
	r.HandleFunc("/gtfs-rt/alerts.pb", s.handleAlerts).Methods("GET")
	return r
}

func jsonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) reindex() {
	s.index.Rebuild(s.ctrl.Routes())
}

func writeJSON[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIResponse[T]{Data: data}); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := errorResponse{Error: err.Error()}
	var vErr *app.ValidationError
	if errors.As(err, &vErr) {
		body.Field = vErr.Field
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode error response: %v", err)
	}
}

// fail maps controller errors onto HTTP statuses.
func fail(w http.ResponseWriter, err error) {
	writeError(w, StatusFor(err), err)
}

func StatusFor(err error) int {
	var vErr *app.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, app.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.Is(err, app.ErrRouteNotFound), errors.Is(err, app.ErrDriverNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrAuthoringActive),
		errors.Is(err, app.ErrNotAuthoring),
		errors.Is(err, app.ErrOptimizing),
		errors.Is(err, app.ErrSimulationRunning),
		errors.Is(err, app.ErrNoActiveRoute),
		errors.Is(err, app.ErrDraftAbandoned):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}
