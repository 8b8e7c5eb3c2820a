package app

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"bus-tracker/internal/geo"
	"bus-tracker/internal/metrics"
	"bus-tracker/internal/model"
	"bus-tracker/internal/narrator"
	"bus-tracker/internal/publisher"
	"bus-tracker/internal/sim"
)

// GeometryClient densifies waypoints into street-following geometry.
type GeometryClient interface {
	Densify(ctx context.Context, pts []geo.LatLng) ([]geo.LatLng, error)
}

// IncidentNarrator turns an incident into a passenger-facing notice.
type IncidentNarrator interface {
	Summarize(ctx context.Context, kind model.IncidentType, description string) (string, error)
}

type Options struct {
	Geometry     GeometryClient
	Narrator     IncidentNarrator
	Sink         publisher.Sink // must not block; called with the state lock held
	Metrics      *metrics.Collector
	TickInterval time.Duration
	Catalog      model.Catalog
	Now          func() time.Time
}

// Controller owns all mutable application state: the process-lifetime
// route and driver catalogs and the login-lifetime session. It is safe
// for concurrent use.
type Controller struct {
	geometry GeometryClient
	narrator IncidentNarrator
	sink     publisher.Sink
	metrics  *metrics.Collector
	ids      *model.IDGenerator
	now      func() time.Time

	driver     *sim.Driver
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu         sync.Mutex
	routes     []model.BusRoute
	drivers    []model.DriverProfile
	session    Session
	sessionGen uint64
	draftGen   uint64
	routeRev   map[string]uint64

	playback    *sim.Playback
	playRouteID string
	playRev     uint64
}

func New(opt Options) *Controller {
	now := opt.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		geometry:   opt.Geometry,
		narrator:   opt.Narrator,
		sink:       opt.Sink,
		metrics:    opt.Metrics,
		ids:        model.NewIDGenerator(now),
		now:        now,
		driver:     sim.NewDriver(opt.TickInterval),
		baseCtx:    ctx,
		baseCancel: cancel,
		routeRev:   make(map[string]uint64),
		session:    loggedOutSession(),
	}
	for _, r := range opt.Catalog.Routes {
		r = r.Clone()
		if r.Status == "" {
			r.Status = model.StatusNormal
		}
		r.QRCodeData = model.ShareToken(r.ID)
		c.routes = append(c.routes, r)
	}
	c.drivers = append(c.drivers, opt.Catalog.Drivers...)
	c.updateCatalogGauges()
	return c
}

func loggedOutSession() Session {
	return Session{View: ViewLogin, Authoring: AuthoringIdle, Run: RunStopped}
}

// Close stops the simulation and waits for its goroutine.
func (c *Controller) Close() {
	c.mu.Lock()
	c.stopPlaybackLocked()
	c.mu.Unlock()
	c.baseCancel()
	c.driver.Wait()
}

var demoNames = map[model.Role]string{
	model.RoleCompany: "Empresa TransExpress",
	model.RoleDriver:  "Motorista Carlos",
	model.RoleUser:    "Passageiro João",
}

// Login replaces the current session with a fresh profile for role.
// There is no credential check.
func (c *Controller) Login(role model.Role) (model.UserProfile, error) {
	if !role.Valid() {
		return model.UserProfile{}, ErrInvalidRole
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	favorites := []string{}
	if role == model.RoleUser {
		favorites = append(favorites, model.DefaultFavoriteRouteID)
	}
	user := model.UserProfile{
		ID:             c.ids.Next("u"),
		Name:           demoNames[role],
		Email:          "user@example.com",
		Role:           role,
		FavoriteRoutes: favorites,
		CompanyID:      model.DefaultCompanyID,
	}

	c.stopPlaybackLocked()
	c.sessionGen++
	c.draftGen++
	c.session = loggedOutSession()
	c.session.User = &user
	c.session.View = ViewDashboard
	if len(c.routes) > 0 {
		c.selectLocked(c.routes[0].ID)
	}
	log.Printf("login role=%s user=%s", role, user.ID)
	return user.Clone(), nil
}

// Logout discards the session. Catalogs are kept.
func (c *Controller) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPlaybackLocked()
	c.sessionGen++
	c.draftGen++
	c.session = loggedOutSession()
}

// SelectRoute makes id the active route.
func (c *Controller) SelectRoute(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.User == nil {
		return ErrNotLoggedIn
	}
	if c.findRouteLocked(id) < 0 {
		return ErrRouteNotFound
	}
	if c.session.ActiveRouteID != id {
		c.selectLocked(id)
	}
	c.reconcileLocked()
	return nil
}

// selectLocked sets the active route and parks the bus at its first point.
func (c *Controller) selectLocked(id string) {
	c.session.ActiveRouteID = id
	c.session.BusPosition, c.session.NextPoint = nil, nil
	if i := c.findRouteLocked(id); i >= 0 {
		c.parkAtStartLocked(c.routes[i].Path())
	}
}

func (c *Controller) parkAtStartLocked(path []geo.LatLng) {
	if len(path) == 0 {
		c.session.BusPosition, c.session.NextPoint = nil, nil
		return
	}
	pos, next := path[0], path[1%len(path)]
	c.session.BusPosition, c.session.NextPoint = &pos, &next
}

// AddDriver appends a driver. Either field empty is a silent no-op
// reported by ok=false.
func (c *Controller) AddDriver(name, email string) (model.DriverProfile, bool) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" {
		return model.DriverProfile{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	companyID := model.DefaultCompanyID
	if c.session.User != nil && c.session.User.CompanyID != "" {
		companyID = c.session.User.CompanyID
	}
	d := model.DriverProfile{ID: c.ids.Next("drv"), Name: name, Email: email, CompanyID: companyID}
	c.drivers = append(c.drivers, d)
	c.updateCatalogGauges()
	return d, true
}

// ReportIncident asks the narrator for a passenger notice, falls back to
// a fixed sentence on failure, and marks the active route DELAYED. The
// returned alert is never empty.
func (c *Controller) ReportIncident(ctx context.Context, kind model.IncidentType, description string) (string, error) {
	if !kind.Valid() {
		return "", &ValidationError{Field: "type", Message: "unknown incident type"}
	}
	c.mu.Lock()
	if c.session.User == nil {
		c.mu.Unlock()
		return "", ErrNotLoggedIn
	}
	gen := c.sessionGen
	routeID := c.session.ActiveRouteID
	c.mu.Unlock()

	start := time.Now()
	alert, fellBack := "", false
	if c.narrator == nil {
		fellBack = true
	} else {
		text, err := c.narrator.Summarize(ctx, kind, description)
		if err != nil {
			log.Printf("incident summary unavailable, using fallback: %v", err)
			fellBack = true
		} else {
			alert = text
		}
	}
	if fellBack || strings.TrimSpace(alert) == "" {
		alert, fellBack = narrator.FallbackNotice, true
	}
	c.metrics.ObserveCall("narrator", time.Since(start), fellBack)

	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.findRouteLocked(routeID); i >= 0 {
		c.routes[i].Status = model.StatusDelayed
		c.routes[i].IncidentDescription = description
	}
	if gen == c.sessionGen {
		c.session.Alert = alert
	}
	if c.metrics != nil {
		c.metrics.Incidents.WithLabelValues(string(kind)).Inc()
	}
	if c.sink != nil {
		msg := publisher.AlertMessage{
			ID:           publisher.NewMessageID(),
			RouteID:      routeID,
			Timestamp:    c.now(),
			IncidentType: string(kind),
			Description:  description,
			Message:      alert,
			Fallback:     fellBack,
		}
		if err := c.sink.PublishAlert(msg); err != nil {
			log.Printf("publish alert for %s: %v", routeID, err)
		}
	}
	return alert, nil
}

// DismissAlert clears the pending alert.
func (c *Controller) DismissAlert() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Alert = ""
}

// SetOffRoute sets the externally computed off-route flag of a route.
func (c *Controller) SetOffRoute(routeID string, offRoute bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.findRouteLocked(routeID)
	if i < 0 {
		return ErrRouteNotFound
	}
	c.routes[i].IsOffRoute = offRoute
	return nil
}

// AssignDriver records which driver operates a route. An empty driverID
// clears the assignment.
func (c *Controller) AssignDriver(routeID, driverID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.findRouteLocked(routeID)
	if i < 0 {
		return ErrRouteNotFound
	}
	if driverID != "" && !c.hasDriverLocked(driverID) {
		return ErrDriverNotFound
	}
	c.routes[i].AssignedDriverID = driverID
	return nil
}

// AddFavorite adds routeID to the user's favorites. Adding twice is a no-op.
func (c *Controller) AddFavorite(routeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.User == nil {
		return ErrNotLoggedIn
	}
	if c.findRouteLocked(routeID) < 0 {
		return ErrRouteNotFound
	}
	if !c.session.User.HasFavorite(routeID) {
		c.session.User.FavoriteRoutes = append(c.session.User.FavoriteRoutes, routeID)
	}
	return nil
}

// RemoveFavorite removes routeID from the user's favorites. Removing an
// absent id is a no-op.
func (c *Controller) RemoveFavorite(routeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.User == nil {
		return ErrNotLoggedIn
	}
	favs := c.session.User.FavoriteRoutes[:0]
	for _, id := range c.session.User.FavoriteRoutes {
		if id != routeID {
			favs = append(favs, id)
		}
	}
	c.session.User.FavoriteRoutes = favs
	return nil
}

// FavoriteRoutes lists the catalog routes in the user's favorites, in
// catalog order. An empty slice is the empty state.
func (c *Controller) FavoriteRoutes() ([]model.BusRoute, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.User == nil {
		return nil, ErrNotLoggedIn
	}
	out := []model.BusRoute{}
	for _, r := range c.routes {
		if c.session.User.HasFavorite(r.ID) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// Route returns a copy of a catalog route.
func (c *Controller) Route(id string) (model.BusRoute, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.findRouteLocked(id)
	if i < 0 {
		return model.BusRoute{}, false
	}
	return c.routes[i].Clone(), true
}

func (c *Controller) Routes() []model.BusRoute {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cloneRoutesLocked()
}

func (c *Controller) Drivers() []model.DriverProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.DriverProfile{}, c.drivers...)
}

// Snapshot returns a deep copy of the application state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Routes:  c.cloneRoutesLocked(),
		Drivers: append([]model.DriverProfile{}, c.drivers...),
		Session: c.session.clone(),
	}
}

func (c *Controller) cloneRoutesLocked() []model.BusRoute {
	out := make([]model.BusRoute, len(c.routes))
	for i, r := range c.routes {
		out[i] = r.Clone()
	}
	return out
}

func (c *Controller) findRouteLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range c.routes {
		if c.routes[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) hasDriverLocked(id string) bool {
	for _, d := range c.drivers {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (c *Controller) updateCatalogGauges() {
	if c.metrics == nil {
		return
	}
	c.metrics.CatalogRoutes.Set(float64(len(c.routes)))
	c.metrics.CatalogDrivers.Set(float64(len(c.drivers)))
}
