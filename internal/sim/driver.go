package sim

import (
	"context"
	"sync"
	"time"
)

const DefaultInterval = 3 * time.Second

// StepFunc runs once per tick. ctx is cancelled when the run is stopped.
type StepFunc func(ctx context.Context, now time.Time)

// Driver owns at most one ticking goroutine. Starting a new run cancels
// the previous one first.
type Driver struct {
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDriver(interval time.Duration) *Driver {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Driver{interval: interval}
}

func (d *Driver) Interval() time.Duration { return d.interval }

// Start launches a ticker loop calling step every interval until Stop,
// a later Start, or cancellation of parent.
func (d *Driver) Start(parent context.Context, step StepFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		tick := time.NewTicker(d.interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-tick.C:
				if ctx.Err() != nil {
					return
				}
				step(ctx, now)
			}
		}
	}()
}

// Stop cancels the current run, if any. It does not wait for the
// goroutine; steps must check their context before mutating state.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

// Running reports whether a run is active.
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel != nil
}

// Wait blocks until every started goroutine has returned.
func (d *Driver) Wait() {
	d.wg.Wait()
}
