package httpgateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/adapters/httpgateway"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/dispatch"
)

func decodeLoad(t *testing.T, raw string) *httpgateway.LoadDTO {
	t.Helper()
	var dto *httpgateway.LoadDTO
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return dto
}

func coordEq(got *domain.Coordinate, want *domain.Coordinate) bool {
	if got == nil || want == nil {
		return got == want
	}
	return *got == *want
}

func TestNormalizeLoad_Precedence(t *testing.T) {
	t.Parallel()

	c := func(lat, lng float64) *domain.Coordinate { return &domain.Coordinate{Lat: lat, Lng: lng} }

	cases := []struct {
		name    string
		raw     string
		wantNil bool
		id      domain.LoadID
		status  domain.LoadStatus
		stop    domain.Stop
		pickup  *domain.Coordinate
		dropoff *domain.Coordinate
	}{
		{name: "null payload", raw: `null`, wantNil: true},
		{name: "no identifier", raw: `{"status":"RESERVED"}`, wantNil: true},
		{name: "blank identifiers", raw: `{"id":"  ","loadId":null}`, wantNil: true},
		{
			name: "nested summary",
			raw:  `{"id":"L1","status":"RESERVED","currentStop":"PICKUP","pickup":{"lat":40,"lng":-105.2},"dropoff":{"lat":39.7,"lng":-104.9}}`,
			id:   "L1", status: domain.LoadStatusReserved, stop: domain.StopPickup,
			pickup: c(40, -105.2), dropoff: c(39.7, -104.9),
		},
		{
			name: "flat assignment",
			raw:  `{"loadId":"L2","status":"IN_PROGRESS","nextStop":"DROPOFF","pickupLat":1,"pickupLng":2,"dropoffLat":3,"dropoffLng":4}`,
			id:   "L2", status: domain.LoadStatusInProgress, stop: domain.StopDropoff,
			pickup: c(1, 2), dropoff: c(3, 4),
		},
		{
			name: "id wins over loadId",
			raw:  `{"id":"A","loadId":"B","status":"RESERVED","currentStop":"PICKUP"}`,
			id:   "A", status: domain.LoadStatusReserved, stop: domain.StopPickup,
		},
		{
			name: "null id falls back to loadId",
			raw:  `{"id":null,"loadId":"B","status":"RESERVED","nextStop":"PICKUP"}`,
			id:   "B", status: domain.LoadStatusReserved, stop: domain.StopPickup,
		},
		{
			name: "currentStop wins over nextStop",
			raw:  `{"id":"A","status":"IN_PROGRESS","currentStop":"DROPOFF","nextStop":"PICKUP"}`,
			id:   "A", status: domain.LoadStatusInProgress, stop: domain.StopDropoff,
		},
		{
			name: "lowercase values",
			raw:  `{"id":"A","status":"reserved","currentStop":"pickup"}`,
			id:   "A", status: domain.LoadStatusReserved, stop: domain.StopPickup,
		},
		{
			name: "stop cleared when completed",
			raw:  `{"id":"A","status":"COMPLETED","currentStop":"DROPOFF"}`,
			id:   "A", status: domain.LoadStatusCompleted, stop: domain.StopNone,
		},
		{
			name: "unknown stop is absent",
			raw:  `{"id":"A","status":"RESERVED","currentStop":"DETOUR"}`,
			id:   "A", status: domain.LoadStatusReserved, stop: domain.StopNone,
		},
		{
			name: "unknown status kept verbatim",
			raw:  `{"id":"A","status":"ARCHIVED","currentStop":"PICKUP"}`,
			id:   "A", status: domain.LoadStatus("ARCHIVED"), stop: domain.StopNone,
		},
		{
			name: "nested wins over flat",
			raw:  `{"id":"A","pickup":{"lat":10,"lng":20},"pickupLat":1,"pickupLng":2}`,
			id:   "A", pickup: c(10, 20),
		},
		{
			name: "invalid nested falls back to flat",
			raw:  `{"id":"A","pickup":{"lat":91,"lng":20},"pickupLat":1,"pickupLng":2}`,
			id:   "A", pickup: c(1, 2),
		},
		{
			name: "null nested falls back to flat",
			raw:  `{"id":"A","dropoff":null,"dropoffLat":5,"dropoffLng":6}`,
			id:   "A", dropoff: c(5, 6),
		},
		{
			name: "half a pair is absent",
			raw:  `{"id":"A","pickup":{"lat":10},"dropoffLat":5,"dropoffLng":null}`,
			id:   "A",
		},
		{
			name: "out of range is absent",
			raw:  `{"id":"A","pickupLat":91,"pickupLng":0,"dropoff":{"lat":0,"lng":-181}}`,
			id:   "A",
		},
		{
			name:   "open status without a stop keeps the stop absent",
			raw:    `{"id":"A","status":"RESERVED"}`,
			id:     "A",
			status: domain.LoadStatusReserved,
			stop:   domain.StopNone,
		},
		{
			name: "zero is a real coordinate",
			raw:  `{"id":"A","pickup":{"lat":0,"lng":0}}`,
			id:   "A", pickup: c(0, 0),
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := httpgateway.NormalizeLoad(decodeLoad(t, tc.raw))
			if tc.wantNil {
				if got != nil {
					t.Fatalf("NormalizeLoad()=%+v want=nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("NormalizeLoad()=nil")
			}
			if got.ID != tc.id || got.Status != tc.status || got.CurrentStop != tc.stop {
				t.Fatalf("got id=%s status=%s stop=%q want id=%s status=%s stop=%q", got.ID, got.Status, got.CurrentStop, tc.id, tc.status, tc.stop)
			}
			if !coordEq(got.Pickup, tc.pickup) {
				t.Fatalf("pickup=%v want=%v", got.Pickup, tc.pickup)
			}
			if !coordEq(got.Dropoff, tc.dropoff) {
				t.Fatalf("dropoff=%v want=%v", got.Dropoff, tc.dropoff)
			}
		})
	}
}

func TestNormalizeLoad_AssignedDriver(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want *domain.AssignedDriver
	}{
		{name: "absent", raw: `{"id":"A"}`},
		{name: "null", raw: `{"id":"A","assignedDriver":null}`},
		{name: "empty object", raw: `{"id":"A","assignedDriver":{}}`},
		{name: "blank fields", raw: `{"id":"A","assignedDriver":{"id":"","name":null}}`},
		{name: "id only", raw: `{"id":"A","assignedDriver":{"id":"d1"}}`, want: &domain.AssignedDriver{ID: "d1"}},
		{name: "name only", raw: `{"id":"A","assignedDriver":{"name":"Alex"}}`, want: &domain.AssignedDriver{Name: "Alex"}},
		{name: "both", raw: `{"id":"A","assignedDriver":{"id":"d1","name":"Alex"}}`, want: &domain.AssignedDriver{ID: "d1", Name: "Alex"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := httpgateway.NormalizeLoad(decodeLoad(t, tc.raw))
			if tc.want == nil {
				if got.AssignedDriver != nil {
					t.Fatalf("AssignedDriver=%+v want=nil", got.AssignedDriver)
				}
				return
			}
			if got.AssignedDriver == nil || *got.AssignedDriver != *tc.want {
				t.Fatalf("AssignedDriver=%+v want=%+v", got.AssignedDriver, tc.want)
			}
		})
	}
}

func TestNormalizeLoad_NilDTO(t *testing.T) {
	t.Parallel()
	if got := httpgateway.NormalizeLoad(nil); got != nil {
		t.Fatalf("NormalizeLoad(nil)=%+v want=nil", got)
	}
}

func TestCheckLoad(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		load    *domain.Load
		wantErr bool
	}{
		{name: "nil", load: nil},
		{name: "reserved at pickup", load: &domain.Load{ID: "A", Status: domain.LoadStatusReserved, CurrentStop: domain.StopPickup}},
		{name: "completed without stop", load: &domain.Load{ID: "A", Status: domain.LoadStatusCompleted}},
		{name: "awaiting without stop", load: &domain.Load{ID: "A", Status: domain.LoadStatusAwaitingDriver}},
		{name: "reserved without stop", load: &domain.Load{ID: "A", Status: domain.LoadStatusReserved}, wantErr: true},
		{name: "in progress without stop", load: &domain.Load{ID: "A", Status: domain.LoadStatusInProgress}, wantErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := httpgateway.CheckLoad(tc.load)
			if got := errors.Is(err, dispatch.ErrMalformedLoad); got != tc.wantErr {
				t.Fatalf("CheckLoad()=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestClient_OpenLoadWithoutStopIsRejected(t *testing.T) {
	t.Parallel()
	c, _ := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"loadId":"L1","status":"IN_PROGRESS","pickupLat":1,"pickupLng":2}`))
	})

	l, err := c.GetAssignment(context.Background(), "drv-1")
	if !errors.Is(err, dispatch.ErrMalformedLoad) || l != nil {
		t.Fatalf("GetAssignment()=%v,%v want ErrMalformedLoad", l, err)
	}
}
