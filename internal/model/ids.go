package model

import (
	"strconv"
	"sync"
	"time"
)

// IDGenerator derives ids from the current time in milliseconds. Two calls
// within the same millisecond get strictly increasing values.
type IDGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns prefix + "-" + unix millis.
func (g *IDGenerator) Next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return prefix + "-" + strconv.FormatInt(ms, 10)
}
