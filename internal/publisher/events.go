package publisher

import (
	"time"

	"github.com/google/uuid"
)

type PositionMessage struct {
	ID        string    `json:"id"`
	RouteID   string    `json:"routeId"`
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Bearing   float64   `json:"bearing"`
	Index     int       `json:"index"`
	PathLen   int       `json:"pathLen"`
}

type AlertMessage struct {
	ID           string    `json:"id"`
	RouteID      string    `json:"routeId,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	IncidentType string    `json:"incidentType"`
	Description  string    `json:"description"`
	Message      string    `json:"message"`
	Fallback     bool      `json:"fallback"`
}

// NewMessageID returns a random id for an outgoing event.
func NewMessageID() string { return uuid.NewString() }

// Sink receives live events from the controller.
type Sink interface {
	PublishPosition(msg PositionMessage) error
	PublishAlert(msg AlertMessage) error
}

// Multi fans events out to every sink and returns the first error.
type Multi []Sink

func (m Multi) PublishPosition(msg PositionMessage) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.PublishPosition(msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) PublishAlert(msg AlertMessage) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.PublishAlert(msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}
