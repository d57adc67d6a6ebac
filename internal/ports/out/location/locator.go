package location

import (
	"context"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
)

// Locator resolves the device's current position.
// Callers bound the wait through ctx; implementations must not retry.
type Locator interface {
	Locate(ctx context.Context) (domain.Coordinate, error)
}
