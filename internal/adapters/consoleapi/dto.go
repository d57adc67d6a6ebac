package consoleapi

import (
	"time"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/app/driversync"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/app/notices"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/journal"
)

type loginRequest struct {
	Username string `json:"username"`
}

type coordinateDTO struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// toDomain requires both components; range checks stay with the engine.
func (c coordinateDTO) toDomain() (domain.Coordinate, map[string]any) {
	details := map[string]any{}
	if c.Lat == nil {
		details["lat"] = "is required"
	}
	if c.Lng == nil {
		details["lng"] = "is required"
	}
	if len(details) > 0 {
		return domain.Coordinate{}, details
	}
	return domain.Coordinate{Lat: *c.Lat, Lng: *c.Lng}, nil
}

func (c *coordinateDTO) coordinate() *domain.Coordinate {
	if c == nil || c.Lat == nil || c.Lng == nil {
		return nil
	}
	return &domain.Coordinate{Lat: *c.Lat, Lng: *c.Lng}
}

type createLoadRequest struct {
	Pickup  *coordinateDTO `json:"pickup"`
	Dropoff *coordinateDTO `json:"dropoff"`
}

type pointDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type driverRefDTO struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type loadDTO struct {
	ID             string        `json:"id"`
	Status         string        `json:"status"`
	CurrentStop    string        `json:"currentStop,omitempty"`
	Pickup         *pointDTO     `json:"pickup"`
	Dropoff        *pointDTO     `json:"dropoff"`
	AssignedDriver *driverRefDTO `json:"assignedDriver,omitempty"`
}

type loadResponse struct {
	Load *loadDTO `json:"load"`
}

type loadsResponse struct {
	Loads []*loadDTO `json:"loads"`
}

type completeStopResponse struct {
	Completed      *loadDTO `json:"completed"`
	NextAssignment *loadDTO `json:"nextAssignment"`
	View           viewDTO  `json:"view"`
}

type identityDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type noticeDTO struct {
	Message   string    `json:"message"`
	Kind      string    `json:"kind"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type affordancesDTO struct {
	CanStartShift bool   `json:"canStartShift"`
	CanAcquire    bool   `json:"canAcquire"`
	CanComplete   bool   `json:"canComplete"`
	CanReject     bool   `json:"canReject"`
	CanEndShift   bool   `json:"canEndShift"`
	NextStop      string `json:"nextStop,omitempty"`
}

type viewDTO struct {
	State       string         `json:"state"`
	Driver      *identityDTO   `json:"driver"`
	OnShift     bool           `json:"onShift"`
	Load        *loadDTO       `json:"load"`
	UpdatedAt   *time.Time     `json:"updatedAt,omitempty"`
	SyncError   string         `json:"syncError,omitempty"`
	Affordances affordancesDTO `json:"affordances"`
	Notice      *noticeDTO     `json:"notice"`
}

type activityDTO struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	State   string    `json:"state"`
	LoadID  string    `json:"loadId,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type activityResponse struct {
	Entries []activityDTO `json:"entries"`
}

func viewFromDomain(v driversync.View, n notices.Notice, live bool) viewDTO {
	a := v.Affordances()
	out := viewDTO{
		State:     string(v.State()),
		OnShift:   v.OnShift,
		Load:      loadFromDomain(v.Load),
		SyncError: v.SyncError,
		Affordances: affordancesDTO{
			CanStartShift: a.CanStartShift,
			CanAcquire:    a.CanAcquire,
			CanComplete:   a.CanComplete,
			CanReject:     a.CanReject,
			CanEndShift:   a.CanEndShift,
			NextStop:      string(a.NextStop),
		},
	}
	if v.Identity != nil {
		out.Driver = &identityDTO{ID: string(v.Identity.ID), Name: v.Identity.DisplayName}
	}
	if !v.UpdatedAt.IsZero() {
		t := v.UpdatedAt.UTC()
		out.UpdatedAt = &t
	}
	if live {
		out.Notice = &noticeDTO{Message: n.Message, Kind: string(n.Kind), ExpiresAt: n.ExpiresAt.UTC()}
	}
	return out
}

func loadFromDomain(l *domain.Load) *loadDTO {
	if l == nil {
		return nil
	}
	out := &loadDTO{
		ID:          string(l.ID),
		Status:      string(l.Status),
		CurrentStop: string(l.CurrentStop),
	}
	if l.Pickup != nil {
		out.Pickup = &pointDTO{Lat: l.Pickup.Lat, Lng: l.Pickup.Lng}
	}
	if l.Dropoff != nil {
		out.Dropoff = &pointDTO{Lat: l.Dropoff.Lat, Lng: l.Dropoff.Lng}
	}
	if l.AssignedDriver != nil {
		out.AssignedDriver = &driverRefDTO{ID: string(l.AssignedDriver.ID), Name: l.AssignedDriver.Name}
	}
	return out
}

func activityFromEntry(e journal.Entry) activityDTO {
	return activityDTO{
		ID:      e.ID,
		Kind:    string(e.Kind),
		State:   e.State,
		LoadID:  string(e.LoadID),
		Message: e.Message,
		At:      e.At.UTC(),
	}
}
