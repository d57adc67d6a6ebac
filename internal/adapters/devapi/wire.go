package devapi

import (
	"time"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
)

type point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type driverRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// loadSummary is the nested load shape.
type loadSummary struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	CurrentStop    *string    `json:"currentStop"`
	Pickup         *point     `json:"pickup"`
	Dropoff        *point     `json:"dropoff"`
	AssignedDriver *driverRef `json:"assignedDriver"`
}

// loadAssignment is the flat load shape.
type loadAssignment struct {
	LoadID     string   `json:"loadId"`
	PickupLat  *float64 `json:"pickupLat"`
	PickupLng  *float64 `json:"pickupLng"`
	DropoffLat *float64 `json:"dropoffLat"`
	DropoffLng *float64 `json:"dropoffLng"`
	Status     string   `json:"status"`
	NextStop   *string  `json:"nextStop"`
}

type driverDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	OnShift bool   `json:"onShift"`
}

type stateResponse struct {
	Driver driverDTO    `json:"driver"`
	Shift  any          `json:"shift"`
	Load   *loadSummary `json:"load"`
}

type completeStopResponse struct {
	Completed      *loadAssignment `json:"completed"`
	NextAssignment *loadAssignment `json:"nextAssignment"`
}

type rejectResponse struct {
	DriverID     string    `json:"driverId"`
	LoadID       string    `json:"loadId"`
	Result       string    `json:"result"`
	ShiftEndedAt time.Time `json:"shiftEndedAt"`
}

type loginRequest struct {
	Username string `json:"username"`
}

type createLoadRequest struct {
	Pickup  *point `json:"pickup"`
	Dropoff *point `json:"dropoff"`
}

// errorResponse is the backend error envelope.
type errorResponse struct {
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	Status        int            `json:"status"`
	Path          string         `json:"path"`
	CorrelationID string         `json:"correlationId"`
	Timestamp     string         `json:"timestamp"`
	Details       map[string]any `json:"details,omitempty"`
}

func summaryFromDomain(l *domain.Load) *loadSummary {
	if l == nil {
		return nil
	}
	out := &loadSummary{
		ID:          string(l.ID),
		Status:      string(l.Status),
		CurrentStop: stopPtr(l.CurrentStop),
		Pickup:      pointPtr(l.Pickup),
		Dropoff:     pointPtr(l.Dropoff),
	}
	if l.AssignedDriver != nil {
		out.AssignedDriver = &driverRef{ID: string(l.AssignedDriver.ID), Name: l.AssignedDriver.Name}
	}
	return out
}

func assignmentFromDomain(l *domain.Load) *loadAssignment {
	if l == nil {
		return nil
	}
	out := &loadAssignment{
		LoadID:   string(l.ID),
		Status:   string(l.Status),
		NextStop: stopPtr(l.CurrentStop),
	}
	if l.Pickup != nil {
		out.PickupLat, out.PickupLng = &l.Pickup.Lat, &l.Pickup.Lng
	}
	if l.Dropoff != nil {
		out.DropoffLat, out.DropoffLng = &l.Dropoff.Lat, &l.Dropoff.Lng
	}
	return out
}

func stopPtr(s domain.Stop) *string {
	if s == domain.StopNone {
		return nil
	}
	v := string(s)
	return &v
}

func pointPtr(c *domain.Coordinate) *point {
	if c == nil {
		return nil
	}
	return &point{Lat: c.Lat, Lng: c.Lng}
}
