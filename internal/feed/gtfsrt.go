// Package feed exports the live state as GTFS-Realtime protobuf feeds.
package feed

import (
	"fmt"
	"sync"
	"time"

	"bus-tracker/internal/app"
	"bus-tracker/internal/geo"
	"bus-tracker/internal/model"
	"bus-tracker/internal/publisher"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

const (
	gtfsRealtimeVersion = "2.0"
	alertLanguage       = "pt-BR"
	ContentType         = "application/x-protobuf"
)

// Feed remembers the latest event per route so the exported feeds can
// carry timestamps and incident causes. It implements publisher.Sink and
// never blocks.
type Feed struct {
	now func() time.Time

	mu        sync.Mutex
	positions map[string]publisher.PositionMessage
	alerts    map[string]publisher.AlertMessage
}

func New(now func() time.Time) *Feed {
	if now == nil {
		now = time.Now
	}
	return &Feed{
		now:       now,
		positions: map[string]publisher.PositionMessage{},
		alerts:    map[string]publisher.AlertMessage{},
	}
}

func (f *Feed) PublishPosition(msg publisher.PositionMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[msg.RouteID] = msg
	return nil
}

func (f *Feed) PublishAlert(msg publisher.AlertMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts[msg.RouteID] = msg
	return nil
}

func (f *Feed) header() *gtfsrtpb.FeedHeader {
	return &gtfsrtpb.FeedHeader{
		GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
		Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
		Timestamp:           proto.Uint64(uint64(f.now().Unix())),
	}
}

// VehiclePositions builds a feed with the simulated bus of the active
// route, if it has a position.
func (f *Feed) VehiclePositions(snap app.Snapshot) *gtfsrtpb.FeedMessage {
	msg := &gtfsrtpb.FeedMessage{Header: f.header()}
	route := snap.ActiveRoute()
	pos := snap.Session.BusPosition
	if route == nil || pos == nil {
		return msg
	}

	ts := f.now()
	f.mu.Lock()
	if last, ok := f.positions[route.ID]; ok {
		ts = last.Timestamp
	}
	f.mu.Unlock()

	vehicleID := VehicleID(*route)
	p := &gtfsrtpb.Position{
		Latitude:  proto.Float32(float32(pos.Lat)),
		Longitude: proto.Float32(float32(pos.Lng)),
	}
	if next := snap.Session.NextPoint; next != nil {
		p.Bearing = proto.Float32(float32(geo.Bearing(*pos, *next)))
	}
	msg.Entity = append(msg.Entity, &gtfsrtpb.FeedEntity{
		Id: proto.String(vehicleID),
		Vehicle: &gtfsrtpb.VehiclePosition{
			Trip: &gtfsrtpb.TripDescriptor{RouteId: proto.String(route.ID)},
			Vehicle: &gtfsrtpb.VehicleDescriptor{
				Id:    proto.String(vehicleID),
				Label: proto.String(route.Name),
			},
			Position:  p,
			Timestamp: proto.Uint64(uint64(ts.Unix())),
		},
	})
	return msg
}

// Alerts builds one alert per route whose status is not NORMAL.
func (f *Feed) Alerts(snap app.Snapshot) *gtfsrtpb.FeedMessage {
	msg := &gtfsrtpb.FeedMessage{Header: f.header()}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range snap.Routes {
		if r.Status == model.StatusNormal || r.Status == "" {
			continue
		}
		header := fmt.Sprintf("%s: %s", r.Name, r.Status)
		kind := model.IncidentType("")
		var start time.Time
		if last, ok := f.alerts[r.ID]; ok {
			header = last.Message
			kind = model.IncidentType(last.IncidentType)
			start = last.Timestamp
		}
		alert := &gtfsrtpb.Alert{
			InformedEntity: []*gtfsrtpb.EntitySelector{{RouteId: proto.String(r.ID)}},
			Cause:          Cause(kind).Enum(),
			Effect:         Effect(r.Status).Enum(),
			HeaderText:     translated(header),
		}
		if r.IncidentDescription != "" {
			alert.DescriptionText = translated(r.IncidentDescription)
		}
		if !start.IsZero() {
			alert.ActivePeriod = []*gtfsrtpb.TimeRange{{Start: proto.Uint64(uint64(start.Unix()))}}
		}
		msg.Entity = append(msg.Entity, &gtfsrtpb.FeedEntity{
			Id:    proto.String("alert-" + r.ID),
			Alert: alert,
		})
	}
	return msg
}

// Marshal encodes a feed message to its wire form.
func Marshal(msg *gtfsrtpb.FeedMessage) ([]byte, error) {
	b, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal gtfs-rt feed: %w", err)
	}
	return b, nil
}

// VehicleID names the simulated bus of a route after its driver when one
// is assigned.
func VehicleID(r model.BusRoute) string {
	if r.AssignedDriverID != "" {
		return r.AssignedDriverID
	}
	return "bus-" + r.ID
}

func Cause(kind model.IncidentType) gtfsrtpb.Alert_Cause {
	switch kind {
	case model.IncidentBreakdown:
		return gtfsrtpb.Alert_TECHNICAL_PROBLEM
	case model.IncidentAccident:
		return gtfsrtpb.Alert_ACCIDENT
	case model.IncidentTraffic, model.IncidentOther:
		return gtfsrtpb.Alert_OTHER_CAUSE
	}
	return gtfsrtpb.Alert_UNKNOWN_CAUSE
}

func Effect(status model.RouteStatus) gtfsrtpb.Alert_Effect {
	switch status {
	case model.StatusDelayed, model.StatusTraffic:
		return gtfsrtpb.Alert_SIGNIFICANT_DELAYS
	case model.StatusBroken:
		return gtfsrtpb.Alert_REDUCED_SERVICE
	}
	return gtfsrtpb.Alert_UNKNOWN_EFFECT
}

func translated(text string) *gtfsrtpb.TranslatedString {
	return &gtfsrtpb.TranslatedString{
		Translation: []*gtfsrtpb.TranslatedString_Translation{
			{Text: proto.String(text), Language: proto.String(alertLanguage)},
		},
	}
}
