package app

import (
	"errors"
	"fmt"

	"bus-tracker/internal/geo"
	"bus-tracker/internal/model"
)

type View string

const (
	ViewLogin     View = "LOGIN"
	ViewDashboard View = "DASHBOARD"
)

// AuthoringState is the route-authoring lifecycle of a session.
type AuthoringState string

const (
	AuthoringIdle       AuthoringState = "IDLE"
	AuthoringDrafting   AuthoringState = "DRAFTING"
	AuthoringOptimizing AuthoringState = "OPTIMIZING"
)

// Active reports whether a draft is in progress. The zero value is idle.
func (s AuthoringState) Active() bool {
	return s == AuthoringDrafting || s == AuthoringOptimizing
}

type RunState string

const (
	RunStopped RunState = "STOPPED"
	RunRunning RunState = "RUNNING"
)

var (
	ErrNotLoggedIn       = errors.New("app: no user logged in")
	ErrInvalidRole       = errors.New("app: invalid role")
	ErrRouteNotFound     = errors.New("app: route not found")
	ErrDriverNotFound    = errors.New("app: driver not found")
	ErrNoActiveRoute     = errors.New("app: no active route")
	ErrAuthoringActive   = errors.New("app: route authoring in progress")
	ErrNotAuthoring      = errors.New("app: no route draft in progress")
	ErrOptimizing        = errors.New("app: route geometry is being optimized")
	ErrSimulationRunning = errors.New("app: simulation is running")
	ErrDraftAbandoned    = errors.New("app: route draft was abandoned before geometry arrived")
)

// ValidationError is a user-facing rejection that leaves state unchanged.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Draft is the in-progress route being authored.
type Draft struct {
	Name      string       `json:"name"`
	Waypoints []geo.LatLng `json:"waypoints"`
	// EditingID is empty when creating a new route.
	EditingID string `json:"editingId,omitempty"`
}

// Session is the login-lifetime portion of the application state.
type Session struct {
	User          *model.UserProfile `json:"user"`
	View          View               `json:"view"`
	ActiveRouteID string             `json:"activeRouteId,omitempty"`
	BusPosition   *geo.LatLng        `json:"busPosition,omitempty"`
	NextPoint     *geo.LatLng        `json:"nextPoint,omitempty"`
	Alert         string             `json:"alert,omitempty"`
	Authoring     AuthoringState     `json:"authoring"`
	Draft         Draft              `json:"draft"`
	Run           RunState           `json:"run"`
}

func (s Session) clone() Session {
	if s.User != nil {
		u := s.User.Clone()
		s.User = &u
	}
	if s.BusPosition != nil {
		p := *s.BusPosition
		s.BusPosition = &p
	}
	if s.NextPoint != nil {
		p := *s.NextPoint
		s.NextPoint = &p
	}
	s.Draft.Waypoints = geo.Clone(s.Draft.Waypoints)
	return s
}

// Snapshot is a deep copy of the whole application state.
type Snapshot struct {
	Routes  []model.BusRoute      `json:"routes"`
	Drivers []model.DriverProfile `json:"drivers"`
	Session Session               `json:"session"`
}

// ActiveRoute returns the selected route from the snapshot, if any.
func (s *Snapshot) ActiveRoute() *model.BusRoute {
	for i := range s.Routes {
		if s.Routes[i].ID == s.Session.ActiveRouteID {
			return &s.Routes[i]
		}
	}
	return nil
}
