package dispatch

import (
	"context"
	"time"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
)

// DriverState is the authoritative {onShift, load} pair returned by the state endpoint.
type DriverState struct {
	OnShift bool
	// Load is nil when the driver holds no load.
	Load *domain.Load
}

// CompleteStopResult is returned after a stop was completed.
type CompleteStopResult struct {
	// Completed is the load after the stop was completed (IN_PROGRESS after pickup,
	// COMPLETED after drop-off).
	Completed *domain.Load
	// NextAssignment is a newly granted load, if the backend reserved one.
	NextAssignment *domain.Load
}

// RejectOutcome describes a reject call; fields are informational.
type RejectOutcome struct {
	Result       string
	ShiftEndedAt time.Time
}

// Gateway is the driver-facing boundary of the dispatch backend.
//
// Implementations return *APIError for responses carrying a backend error payload and
// wrap transport failures (including context cancellation) otherwise.
type Gateway interface {
	Login(ctx context.Context, username string) (domain.DriverIdentity, error)
	StartShift(ctx context.Context, driverID domain.DriverID, at domain.Coordinate) error
	EndShift(ctx context.Context, driverID domain.DriverID) error

	// GetState bypasses caches.
	GetState(ctx context.Context, driverID domain.DriverID) (DriverState, error)
	// GetAssignment bypasses caches. It returns (nil, nil) when the backend has nothing to offer.
	GetAssignment(ctx context.Context, driverID domain.DriverID) (*domain.Load, error)

	CompleteStop(ctx context.Context, driverID domain.DriverID, loadID domain.LoadID) (CompleteStopResult, error)
	RejectLoad(ctx context.Context, driverID domain.DriverID, loadID domain.LoadID) (RejectOutcome, error)
}

// FleetGateway is the administrative boundary used to observe and create loads.
type FleetGateway interface {
	// ListLoads returns all loads when status is empty.
	ListLoads(ctx context.Context, status domain.LoadStatus) ([]domain.Load, error)
	CreateLoad(ctx context.Context, pickup, dropoff domain.Coordinate) (domain.Load, error)
}
