package app

import (
	"context"
	"log"
	"strings"
	"time"

	"bus-tracker/internal/geo"
	"bus-tracker/internal/model"
)

// MinWaypoints is the smallest committable draft.
const MinWaypoints = 2

// StartRouteDraft enters authoring. An empty existingID starts a new
// route; otherwise the route's name and waypoints are preloaded for
// editing.
func (c *Controller) StartRouteDraft(existingID string) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.User == nil {
		return Draft{}, ErrNotLoggedIn
	}
	if c.session.Authoring.Active() {
		return Draft{}, ErrAuthoringActive
	}
	if c.session.Run == RunRunning {
		return Draft{}, ErrSimulationRunning
	}
	draft := Draft{Waypoints: []geo.LatLng{}}
	if existingID != "" {
		i := c.findRouteLocked(existingID)
		if i < 0 {
			return Draft{}, ErrRouteNotFound
		}
		draft.Name = c.routes[i].Name
		draft.Waypoints = geo.Clone(c.routes[i].Points)
		draft.EditingID = existingID
	}
	c.draftGen++
	c.session.Draft = draft
	c.session.Authoring = AuthoringDrafting
	c.reconcileLocked()
	return cloneDraft(draft), nil
}

// SetDraftName updates the draft's name.
func (c *Controller) SetDraftName(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireDraftingLocked(); err != nil {
		return err
	}
	c.session.Draft.Name = name
	return nil
}

// AddDraftWaypoint appends a waypoint to the draft. No deduplication.
func (c *Controller) AddDraftWaypoint(lat, lng float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireDraftingLocked(); err != nil {
		return err
	}
	c.session.Draft.Waypoints = append(c.session.Draft.Waypoints, geo.LatLng{Lat: lat, Lng: lng})
	return nil
}

// Authoring reports the current authoring state.
func (c *Controller) Authoring() AuthoringState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Authoring
}

// DiscardRouteDraft leaves authoring. A commit waiting for geometry will
// drop its result.
func (c *Controller) DiscardRouteDraft() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.Authoring.Active() {
		return ErrNotAuthoring
	}
	c.draftGen++
	c.session.Authoring = AuthoringIdle
	c.session.Draft = Draft{}
	c.reconcileLocked()
	return nil
}

// CommitRouteDraft validates the draft, densifies it and stores the
// route. Validation failures leave the draft untouched. A geometry
// failure falls back to the raw waypoints. If the draft is discarded or
// the session replaced while geometry is in flight, the result is
// dropped and ErrDraftAbandoned is returned.
func (c *Controller) CommitRouteDraft(ctx context.Context) (model.BusRoute, error) {
	c.mu.Lock()
	if c.session.User == nil {
		c.mu.Unlock()
		return model.BusRoute{}, ErrNotLoggedIn
	}
	switch c.session.Authoring {
	case AuthoringIdle:
		c.mu.Unlock()
		return model.BusRoute{}, ErrNotAuthoring
	case AuthoringOptimizing:
		c.mu.Unlock()
		return model.BusRoute{}, ErrOptimizing
	}
	if err := validateDraft(c.session.Draft); err != nil {
		c.mu.Unlock()
		return model.BusRoute{}, err
	}
	c.session.Authoring = AuthoringOptimizing
	gen := c.draftGen
	draft := cloneDraft(c.session.Draft)
	user := c.session.User.Clone()
	c.mu.Unlock()

	geometry := c.densify(ctx, draft.Waypoints)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.draftGen || c.session.Authoring != AuthoringOptimizing {
		if c.metrics != nil {
			c.metrics.DraftsAbandoned.Inc()
		}
		log.Printf("dropping geometry for abandoned draft %q", draft.Name)
		return model.BusRoute{}, ErrDraftAbandoned
	}

	id, mode := draft.EditingID, "edit"
	if id == "" {
		id, mode = c.ids.Next("route"), "create"
	}
	companyID := user.CompanyID
	if companyID == "" {
		companyID = model.DefaultCompanyID
	}
	route := model.BusRoute{
		ID:          id,
		Name:        strings.TrimSpace(draft.Name),
		CompanyID:   companyID,
		CompanyName: user.Name,
		Points:      draft.Waypoints,
		Geometry:    geometry,
		Status:      model.StatusNormal,
		QRCodeData:  model.ShareToken(id),
		IsOffRoute:  false,
	}
	if i := c.findRouteLocked(id); i >= 0 {
		route.AssignedDriverID = c.routes[i].AssignedDriverID
		c.routes[i] = route
	} else {
		c.routes = append(c.routes, route)
	}
	c.routeRev[id]++
	c.draftGen++
	c.session.Authoring = AuthoringIdle
	c.session.Draft = Draft{}
	c.selectLocked(id)
	c.reconcileLocked()

	if c.metrics != nil {
		c.metrics.RoutesCommitted.WithLabelValues(mode).Inc()
	}
	c.updateCatalogGauges()
	log.Printf("route %s committed (%s): %d waypoints, %d geometry points", id, mode, len(route.Points), len(route.Geometry))
	return route.Clone(), nil
}

// densify calls the geometry client and substitutes the waypoints when
// it fails or returns nothing.
func (c *Controller) densify(ctx context.Context, waypoints []geo.LatLng) []geo.LatLng {
	start := time.Now()
	var (
		geometry []geo.LatLng
		err      error
	)
	if c.geometry != nil {
		geometry, err = c.geometry.Densify(ctx, waypoints)
	}
	fellBack := c.geometry == nil || err != nil || len(geometry) == 0
	if fellBack {
		if err != nil {
			log.Printf("route geometry unavailable, using waypoints: %v", err)
		}
		geometry = geo.Clone(waypoints)
	}
	c.metrics.ObserveCall("routing", time.Since(start), fellBack)
	return geometry
}

func (c *Controller) requireDraftingLocked() error {
	switch c.session.Authoring {
	case AuthoringDrafting:
		return nil
	case AuthoringOptimizing:
		return ErrOptimizing
	}
	return ErrNotAuthoring
}

func validateDraft(d Draft) error {
	if strings.TrimSpace(d.Name) == "" {
		return &ValidationError{Field: "name", Message: "route name is required"}
	}
	if len(d.Waypoints) < MinWaypoints {
		return &ValidationError{Field: "waypoints", Message: "mark at least 2 points on the map"}
	}
	return nil
}

func cloneDraft(d Draft) Draft {
	d.Waypoints = geo.Clone(d.Waypoints)
	return d
}
