package viewfeed

import (
	"context"
	"time"
)

// Event is the wire shape of a driver view change published to external subscribers.
type Event struct {
	DriverID    string    `json:"driverId"`
	State       string    `json:"state"`
	OnShift     bool      `json:"onShift"`
	LoadID      string    `json:"loadId,omitempty"`
	LoadStatus  string    `json:"loadStatus,omitempty"`
	CurrentStop string    `json:"currentStop,omitempty"`
	Reason      string    `json:"reason"`
	At          time.Time `json:"at"`
}

// Publisher delivers view change events to an external broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}
