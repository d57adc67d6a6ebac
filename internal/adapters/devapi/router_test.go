package devapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/adapters/devapi"
	memclock "github.com/Overland-East-Bay/load-dispatch-client/internal/adapters/memory/clock"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/adapters/memory/dispatchbackend"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	clk := memclock.NewManualClock(time.Unix(1_700_000_000, 0).UTC())
	b := dispatchbackend.New(clk, 0)
	return devapi.NewRouter(b, b, clk)
}

func serve(h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Code          string         `json:"code"`
	Status        int            `json:"status"`
	Path          string         `json:"path"`
	CorrelationID string         `json:"correlationId"`
	Timestamp     string         `json:"timestamp"`
	Details       map[string]any `json:"details"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return e
}

func TestRouter_Healthz(t *testing.T) {
	t.Parallel()
	rr := serve(newTestRouter(t), http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestRouter_ErrorEnvelopeEchoesCorrelationID(t *testing.T) {
	t.Parallel()
	rr := serve(newTestRouter(t), http.MethodPost, "/api/drivers/nope/shift/end", "", map[string]string{"X-Correlation-Id": "abc-123"})

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d want=%d", rr.Code, http.StatusNotFound)
	}
	if got := rr.Header().Get("X-Correlation-Id"); got != "abc-123" {
		t.Fatalf("header correlation=%q want=abc-123", got)
	}
	e := decodeEnvelope(t, rr)
	if e.Code != "DRIVER_NOT_FOUND" || e.Status != http.StatusNotFound || e.Path != "/api/drivers/nope/shift/end" || e.CorrelationID != "abc-123" {
		t.Fatalf("envelope=%+v", e)
	}
	if e.Timestamp != "2023-11-14T22:13:20Z" {
		t.Fatalf("timestamp=%q", e.Timestamp)
	}
}

func TestRouter_MintsCorrelationID(t *testing.T) {
	t.Parallel()
	rr := serve(newTestRouter(t), http.MethodPost, "/api/drivers/login", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want=%d", rr.Code, http.StatusBadRequest)
	}
	e := decodeEnvelope(t, rr)
	if e.Code != "VALIDATION_ERROR" || e.CorrelationID == "" || e.CorrelationID != rr.Header().Get("X-Correlation-Id") {
		t.Fatalf("envelope=%+v header=%q", e, rr.Header().Get("X-Correlation-Id"))
	}
}

func TestRouter_LoadsValidation(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)

	rr := serve(h, http.MethodGet, "/api/loads?status=bogus", "", nil)
	if rr.Code != http.StatusBadRequest || decodeEnvelope(t, rr).Code != "VALIDATION_ERROR" {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = serve(h, http.MethodPost, "/api/loads", `{"pickup":{"lat":1,"lng":2}}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want=%d", rr.Code, http.StatusBadRequest)
	}
	if e := decodeEnvelope(t, rr); e.Details["dropoff"] != "is required" {
		t.Fatalf("details=%v", e.Details)
	}

	rr = serve(h, http.MethodPost, "/api/loads", `{"pickup":{"lat":1,"lng":2},"dropoff":{"lat":3,"lng":4}}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var created map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &created)
	if created["status"] != "AWAITING_DRIVER" || created["currentStop"] != nil {
		t.Fatalf("created=%v", created)
	}
}

func TestRouter_AssignmentShapes(t *testing.T) {
	t.Parallel()
	h := newTestRouter(t)

	_ = serve(h, http.MethodPost, "/api/loads", `{"pickup":{"lat":1,"lng":2},"dropoff":{"lat":3,"lng":4}}`, nil)
	rr := serve(h, http.MethodPost, "/api/drivers/login", `{"username":"alex"}`, nil)
	var drv struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &drv)
	if drv.ID == "" {
		t.Fatalf("login body=%s", rr.Body.String())
	}
	base := "/api/drivers/" + drv.ID

	if rr := serve(h, http.MethodPost, base+"/shift/start", `{"lat":40,"lng":-105}`, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("start status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = serve(h, http.MethodGet, base+"/assignment", "", nil)
	var flat map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &flat)
	if flat["loadId"] == nil || flat["nextStop"] != "PICKUP" || flat["pickupLat"] != 1.0 {
		t.Fatalf("assignment=%v", flat)
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("assignment Cache-Control=%q", rr.Header().Get("Cache-Control"))
	}

	rr = serve(h, http.MethodGet, base+"/state", "", nil)
	var st struct {
		Driver struct {
			OnShift bool `json:"onShift"`
		} `json:"driver"`
		Load map[string]any `json:"load"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &st)
	if !st.Driver.OnShift || st.Load["id"] != flat["loadId"] || st.Load["currentStop"] != "PICKUP" {
		t.Fatalf("state=%s", rr.Body.String())
	}
}
