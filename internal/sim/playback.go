package sim

import "bus-tracker/internal/geo"

// Playback steps through a closed-loop path one point per tick.
type Playback struct {
	path  []geo.LatLng
	index int
}

func NewPlayback(path []geo.LatLng) *Playback {
	return &Playback{path: geo.Clone(path)}
}

func (p *Playback) Len() int   { return len(p.path) }
func (p *Playback) Index() int { return p.index }

// Reset moves back to the first point and reports it with its successor.
func (p *Playback) Reset() (pos, next geo.LatLng, ok bool) {
	p.index = 0
	return p.current()
}

// Advance moves to (index+1) mod N. An empty path never advances.
func (p *Playback) Advance() (pos, next geo.LatLng, ok bool) {
	n := len(p.path)
	if n == 0 {
		return geo.LatLng{}, geo.LatLng{}, false
	}
	p.index = (p.index + 1) % n
	return p.current()
}

func (p *Playback) current() (pos, next geo.LatLng, ok bool) {
	n := len(p.path)
	if n == 0 {
		return geo.LatLng{}, geo.LatLng{}, false
	}
	return p.path[p.index], p.path[(p.index+1)%n], true
}
