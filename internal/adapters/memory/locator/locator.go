package locator

import (
	"context"
	"errors"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/location"
)

// ErrUnavailable is returned by Unavailable.
var ErrUnavailable = errors.New("locator: position unavailable")

// Static always reports the same position. It backs headless deployments that start
// shifts from a configured depot.
type Static struct {
	At domain.Coordinate
}

var _ location.Locator = Static{}

func (s Static) Locate(ctx context.Context) (domain.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return domain.Coordinate{}, err
	}
	return s.At, nil
}

// Unavailable never resolves a position.
type Unavailable struct{}

var _ location.Locator = Unavailable{}

func (Unavailable) Locate(ctx context.Context) (domain.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return domain.Coordinate{}, err
	}
	return domain.Coordinate{}, ErrUnavailable
}
