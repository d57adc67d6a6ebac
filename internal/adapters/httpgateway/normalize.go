package httpgateway

import (
	"fmt"
	"strings"

	"github.com/oapi-codegen/nullable"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/dispatch"
)

// NormalizeLoad maps any backend load shape to a domain.Load. It returns nil for a
// nil DTO or one without an identifier.
//
// Precedence per field:
//   - ID: id, then loadId.
//   - CurrentStop: currentStop, then nextStop. Cleared unless the status is open.
//   - Pickup/Dropoff: the nested {lat,lng} object, then the flat *Lat/*Lng pair.
//     A pair with a missing, non-finite or out-of-range component is absent.
//   - AssignedDriver: absent unless id or name is non-empty.
//
// Unknown status strings are kept verbatim. An open status without a usable stop is
// returned as is; see CheckLoad.
func NormalizeLoad(dto *LoadDTO) *domain.Load {
	if dto == nil {
		return nil
	}
	id := firstString(dto.ID, dto.LoadID)
	if id == "" {
		return nil
	}

	out := &domain.Load{ID: domain.LoadID(id)}
	if raw := value(dto.Status); raw != "" {
		if st, ok := domain.ParseLoadStatus(strings.ToUpper(raw)); ok {
			out.Status = st
		} else {
			out.Status = domain.LoadStatus(raw)
		}
	}
	if out.Status.Open() {
		out.CurrentStop, _ = domain.ParseStop(strings.ToUpper(firstString(dto.CurrentStop, dto.NextStop)))
	}
	out.Pickup = coordinate(dto.Pickup, dto.PickupLat, dto.PickupLng)
	out.Dropoff = coordinate(dto.Dropoff, dto.DropoffLat, dto.DropoffLng)

	if ref, ok := get(dto.AssignedDriver); ok {
		d := domain.AssignedDriver{ID: domain.DriverID(value(ref.ID)), Name: value(ref.Name)}
		if d.ID != "" || d.Name != "" {
			out.AssignedDriver = &d
		}
	}
	return out
}

// CheckLoad rejects a load whose status is open but carries no current stop. The stop
// is never inferred from the status.
func CheckLoad(l *domain.Load) error {
	if l != nil && l.Status.Open() && l.CurrentStop == domain.StopNone {
		return fmt.Errorf("%w: load %s is %s", dispatch.ErrMalformedLoad, l.ID, l.Status)
	}
	return nil
}

func coordinate(nested nullable.Nullable[PointDTO], flatLat, flatLng nullable.Nullable[float64]) *domain.Coordinate {
	if p, ok := get(nested); ok {
		if c := pair(p.Lat, p.Lng); c != nil {
			return c
		}
	}
	return pair(flatLat, flatLng)
}

func pair(lat, lng nullable.Nullable[float64]) *domain.Coordinate {
	la, okLat := get(lat)
	lo, okLng := get(lng)
	if !okLat || !okLng {
		return nil
	}
	return domain.NewCoordinate(la, lo)
}

func firstString(vals ...nullable.Nullable[string]) string {
	for _, v := range vals {
		if s := strings.TrimSpace(value(v)); s != "" {
			return s
		}
	}
	return ""
}

func value[T any](n nullable.Nullable[T]) T {
	v, _ := get(n)
	return v
}

func get[T any](n nullable.Nullable[T]) (T, bool) {
	var zero T
	if !n.IsSpecified() || n.IsNull() {
		return zero, false
	}
	v, err := n.Get()
	if err != nil {
		return zero, false
	}
	return v, true
}
