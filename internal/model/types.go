package model

import (
	"bus-tracker/internal/geo"
)

type Role string

const (
	RoleCompany Role = "COMPANY"
	RoleDriver  Role = "DRIVER"
	RoleUser    Role = "USER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCompany, RoleDriver, RoleUser:
		return true
	}
	return false
}

type RouteStatus string

const (
	StatusNormal  RouteStatus = "NORMAL"
	StatusDelayed RouteStatus = "DELAYED"
	StatusBroken  RouteStatus = "BROKEN"
	StatusTraffic RouteStatus = "TRAFFIC"
)

type IncidentType string

const (
	IncidentBreakdown IncidentType = "BREAKDOWN"
	IncidentTraffic   IncidentType = "TRAFFIC"
	IncidentAccident  IncidentType = "ACCIDENT"
	IncidentOther     IncidentType = "OTHER"
	IncidentClear     IncidentType = "CLEAR"
)

func (t IncidentType) Valid() bool {
	switch t {
	case IncidentBreakdown, IncidentTraffic, IncidentAccident, IncidentOther, IncidentClear:
		return true
	}
	return false
}

const shareScheme = "meuonibus"

// ShareToken is the scannable share payload for a route id.
func ShareToken(routeID string) string {
	return shareScheme + "://route/" + routeID
}

// BusRoute holds author-placed waypoints (Points) and, once committed, the
// street-snapped Geometry used for rendering and playback.
type BusRoute struct {
	ID                  string       `json:"id" yaml:"id"`
	Name                string       `json:"name" yaml:"name"`
	CompanyID           string       `json:"companyId" yaml:"companyId"`
	CompanyName         string       `json:"companyName" yaml:"companyName"`
	Points              []geo.LatLng `json:"points" yaml:"points"`
	Geometry            []geo.LatLng `json:"geometry,omitempty" yaml:"geometry"`
	Status              RouteStatus  `json:"status" yaml:"status"`
	IncidentDescription string       `json:"incidentDescription,omitempty" yaml:"-"`
	QRCodeData          string       `json:"qrCodeData" yaml:"-"`
	IsOffRoute          bool         `json:"isOffRoute" yaml:"-"`
	AssignedDriverID    string       `json:"assignedDriverId,omitempty" yaml:"-"`
}

// Path returns the dense geometry when present, else the waypoints.
func (r *BusRoute) Path() []geo.LatLng {
	if len(r.Geometry) > 0 {
		return r.Geometry
	}
	return r.Points
}

// Clone deep-copies the coordinate slices.
func (r BusRoute) Clone() BusRoute {
	r.Points = geo.Clone(r.Points)
	r.Geometry = geo.Clone(r.Geometry)
	return r
}

type DriverProfile struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Email     string `json:"email" yaml:"email"`
	CompanyID string `json:"companyId" yaml:"companyId"`
}

type UserProfile struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Role           Role     `json:"role"`
	FavoriteRoutes []string `json:"favoriteRoutes"`
	CompanyID      string   `json:"companyId,omitempty"`
}

func (u UserProfile) Clone() UserProfile {
	u.FavoriteRoutes = append([]string{}, u.FavoriteRoutes...)
	return u
}

func (u *UserProfile) HasFavorite(routeID string) bool {
	for _, id := range u.FavoriteRoutes {
		if id == routeID {
			return true
		}
	}
	return false
}
