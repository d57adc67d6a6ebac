package httpgateway

import (
	"github.com/oapi-codegen/nullable"
)

// LoadDTO accepts every load shape the dispatch backend emits: the nested summary
// (id, currentStop, pickup{lat,lng}) and the flat assignment (loadId, nextStop,
// pickupLat/pickupLng). NormalizeLoad collapses it into a domain.Load.
type LoadDTO struct {
	ID     nullable.Nullable[string] `json:"id,omitempty"`
	LoadID nullable.Nullable[string] `json:"loadId,omitempty"`
	Status nullable.Nullable[string] `json:"status,omitempty"`

	CurrentStop nullable.Nullable[string] `json:"currentStop,omitempty"`
	NextStop    nullable.Nullable[string] `json:"nextStop,omitempty"`

	Pickup  nullable.Nullable[PointDTO] `json:"pickup,omitempty"`
	Dropoff nullable.Nullable[PointDTO] `json:"dropoff,omitempty"`

	PickupLat  nullable.Nullable[float64] `json:"pickupLat,omitempty"`
	PickupLng  nullable.Nullable[float64] `json:"pickupLng,omitempty"`
	DropoffLat nullable.Nullable[float64] `json:"dropoffLat,omitempty"`
	DropoffLng nullable.Nullable[float64] `json:"dropoffLng,omitempty"`

	AssignedDriver nullable.Nullable[DriverRefDTO] `json:"assignedDriver,omitempty"`
}

type PointDTO struct {
	Lat nullable.Nullable[float64] `json:"lat,omitempty"`
	Lng nullable.Nullable[float64] `json:"lng,omitempty"`
}

type DriverRefDTO struct {
	ID   nullable.Nullable[string] `json:"id,omitempty"`
	Name nullable.Nullable[string] `json:"name,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
}

type driverDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OnShift bool   `json:"onShift"`
}

type coordinateDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type stateDTO struct {
	Driver *driverDTO `json:"driver"`
	Load   *LoadDTO   `json:"load"`
}

type completeStopDTO struct {
	Completed      *LoadDTO `json:"completed"`
	NextAssignment *LoadDTO `json:"nextAssignment"`
}

type rejectDTO struct {
	Result       string `json:"result"`
	ShiftEndedAt string `json:"shiftEndedAt"`
}

type createLoadRequest struct {
	Pickup  coordinateDTO `json:"pickup"`
	Dropoff coordinateDTO `json:"dropoff"`
}

// errorDTO mirrors the backend ErrorResponse.
type errorDTO struct {
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	Status        int            `json:"status"`
	Path          string         `json:"path"`
	CorrelationID string         `json:"correlationId"`
	Timestamp     string         `json:"timestamp"`
	Details       map[string]any `json:"details"`
}
