package fleet

import (
	"context"
	"fmt"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/dispatch"
)

const coordinateRule = "lat must be between -90 and 90, lng between -180 and 180"

// Service is the administrative view over loads: listing them and creating new ones.
type Service struct {
	gw dispatch.FleetGateway
}

func NewService(gw dispatch.FleetGateway) *Service {
	return &Service{gw: gw}
}

type CreateLoadInput struct {
	Pickup  *domain.Coordinate
	Dropoff *domain.Coordinate
}

// ListLoads returns loads filtered by status; an empty status lists all of them.
func (s *Service) ListLoads(ctx context.Context, status string) ([]domain.Load, error) {
	var filter domain.LoadStatus
	if status != "" {
		st, ok := domain.ParseLoadStatus(status)
		if !ok {
			return nil, &Error{
				Status:  422,
				Code:    dispatch.CodeValidation,
				Message: "invalid status filter",
				Details: map[string]any{"status": "must be one of AWAITING_DRIVER, RESERVED, IN_PROGRESS, COMPLETED"},
			}
		}
		filter = st
	}
	loads, err := s.gw.ListLoads(ctx, filter)
	if err != nil {
		return nil, fromGateway(err)
	}
	return loads, nil
}

func (s *Service) CreateLoad(ctx context.Context, in CreateLoadInput) (domain.Load, error) {
	details := map[string]any{}
	checkCoordinate(details, "pickup", in.Pickup)
	checkCoordinate(details, "dropoff", in.Dropoff)
	if len(details) > 0 {
		return domain.Load{}, &Error{Status: 422, Code: dispatch.CodeValidation, Message: "invalid load", Details: details}
	}
	if *in.Pickup == *in.Dropoff {
		return domain.Load{}, &Error{
			Status:  422,
			Code:    dispatch.CodeValidation,
			Message: "pickup and dropoff cannot be the same coordinates",
		}
	}

	l, err := s.gw.CreateLoad(ctx, *in.Pickup, *in.Dropoff)
	if err != nil {
		return domain.Load{}, fromGateway(err)
	}
	return l, nil
}

func checkCoordinate(details map[string]any, field string, c *domain.Coordinate) {
	switch {
	case c == nil:
		details[field] = "is required"
	case !c.Valid():
		details[field] = coordinateRule
	}
}

func fromGateway(err error) error {
	if ae, ok := dispatch.AsAPIError(err); ok {
		code := ae.Code
		if code == "" {
			code = dispatch.CodeInternal
		}
		return &Error{Status: ae.Status, Code: code, Message: ae.Message, Details: ae.Details}
	}
	return &Error{Status: 502, Code: "DISPATCH_UNAVAILABLE", Message: fmt.Sprintf("dispatch service unavailable: %v", err)}
}
