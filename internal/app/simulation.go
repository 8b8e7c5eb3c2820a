package app

import (
	"context"
	"log"
	"time"

	"bus-tracker/internal/geo"
	"bus-tracker/internal/publisher"
	"bus-tracker/internal/sim"
)

// ToggleSimulation starts or stops the simulated trip on the active route.
func (c *Controller) ToggleSimulation(run bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !run {
		c.session.Run = RunStopped
		c.reconcileLocked()
		return nil
	}
	if c.session.User == nil {
		return ErrNotLoggedIn
	}
	if c.session.Authoring.Active() {
		return ErrAuthoringActive
	}
	if c.findRouteLocked(c.session.ActiveRouteID) < 0 {
		return ErrNoActiveRoute
	}
	c.session.Run = RunRunning
	c.reconcileLocked()
	return nil
}

// SimulationActive reports whether a playback is currently ticking.
func (c *Controller) SimulationActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playback != nil
}

// reconcileLocked is the only place that starts or stops playback. It
// runs after every transition and keeps at most one ticker alive, for
// the active route's current path.
func (c *Controller) reconcileLocked() {
	i := c.findRouteLocked(c.session.ActiveRouteID)
	desired := c.session.User != nil &&
		c.session.View == ViewDashboard &&
		c.session.Run == RunRunning &&
		!c.session.Authoring.Active() &&
		i >= 0
	if !desired {
		c.stopPlaybackLocked()
		return
	}
	id := c.routes[i].ID
	rev := c.routeRev[id]
	if c.playback != nil && c.playRouteID == id && c.playRev == rev {
		return
	}
	c.startPlaybackLocked(id, rev, c.routes[i].Path())
}

func (c *Controller) startPlaybackLocked(routeID string, rev uint64, path []geo.LatLng) {
	c.playback = sim.NewPlayback(path)
	c.playRouteID = routeID
	c.playRev = rev
	if pos, next, ok := c.playback.Reset(); ok {
		c.applyPositionLocked(pos, next, time.Now())
	}
	c.driver.Start(c.baseCtx, c.step)
	if c.metrics != nil {
		c.metrics.SimulationStarts.Inc()
		c.metrics.SimulationRunning.Set(1)
	}
	log.Printf("simulation started on route %s (%d points)", routeID, len(path))
}

func (c *Controller) stopPlaybackLocked() {
	if c.playback == nil {
		return
	}
	c.driver.Stop()
	log.Printf("simulation stopped on route %s", c.playRouteID)
	c.playback = nil
	c.playRouteID = ""
	if c.metrics != nil {
		c.metrics.SimulationRunning.Set(0)
	}
}

// step advances the playback by one point. The driver cancels ctx under
// the same lock, so a tick that loses the race observes ctx.Err and
// leaves state alone.
func (c *Controller) step(ctx context.Context, now time.Time) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil || c.playback == nil {
		return
	}
	pos, next, ok := c.playback.Advance()
	if !ok {
		return
	}
	c.applyPositionLocked(pos, next, now)
	if c.metrics != nil {
		c.metrics.SimulationTicks.Inc()
		c.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
}

func (c *Controller) applyPositionLocked(pos, next geo.LatLng, now time.Time) {
	c.session.BusPosition = &pos
	c.session.NextPoint = &next
	if c.sink == nil {
		return
	}
	msg := publisher.PositionMessage{
		ID:        publisher.NewMessageID(),
		RouteID:   c.playRouteID,
		Timestamp: now,
		Lat:       pos.Lat,
		Lng:       pos.Lng,
		Bearing:   geo.Bearing(pos, next),
		Index:     c.playback.Index(),
		PathLen:   c.playback.Len(),
	}
	if err := c.sink.PublishPosition(msg); err != nil {
		log.Printf("publish position for %s: %v", c.playRouteID, err)
	}
}
