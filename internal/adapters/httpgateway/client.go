package httpgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	clockport "github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/clock"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/dispatch"
)

const (
	DefaultTimeout = 10 * time.Second

	HeaderCorrelationID = "X-Correlation-Id"

	// cacheBustParam carries a timestamp on reads so intermediaries never serve a stale copy.
	cacheBustParam = "_t"

	maxErrorBody = 64 << 10
)

var ErrInvalidBaseURL = errors.New("httpgateway: invalid base url")

type Options struct {
	// HTTPClient defaults to a client with DefaultTimeout.
	HTTPClient *http.Client
	// Clock stamps cache-busting parameters. Defaults to wall time.
	Clock clockport.Clock
	// NewCorrelationID defaults to uuid.NewString.
	NewCorrelationID func() string
}

// Client talks to the dispatch backend over JSON/HTTP.
type Client struct {
	base   *url.URL
	hc     *http.Client
	now    func() time.Time
	corrID func() string
}

var (
	_ dispatch.Gateway      = (*Client)(nil)
	_ dispatch.FleetGateway = (*Client)(nil)
)

// New returns a client rooted at baseURL, e.g. "http://localhost:8080/api".
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	c := &Client{base: u, hc: opts.HTTPClient, now: time.Now, corrID: opts.NewCorrelationID}
	if c.hc == nil {
		c.hc = &http.Client{Timeout: DefaultTimeout}
	}
	if opts.Clock != nil {
		c.now = opts.Clock.Now
	}
	if c.corrID == nil {
		c.corrID = uuid.NewString
	}
	return c, nil
}

func (c *Client) Login(ctx context.Context, username string) (domain.DriverIdentity, error) {
	var out driverDTO
	if _, err := c.do(ctx, request{method: http.MethodPost, path: "/drivers/login", body: loginRequest{Username: username}}, &out); err != nil {
		return domain.DriverIdentity{}, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return domain.DriverIdentity{}, fmt.Errorf("httpgateway: login response without driver id")
	}
	return domain.DriverIdentity{ID: domain.DriverID(out.ID), DisplayName: out.Name}, nil
}

func (c *Client) StartShift(ctx context.Context, driverID domain.DriverID, at domain.Coordinate) error {
	p, err := driverPath(driverID, "/shift/start")
	if err != nil {
		return err
	}
	_, err = c.do(ctx, request{method: http.MethodPost, path: p, body: coordinateDTO{Lat: at.Lat, Lng: at.Lng}}, nil)
	return err
}

func (c *Client) EndShift(ctx context.Context, driverID domain.DriverID) error {
	p, err := driverPath(driverID, "/shift/end")
	if err != nil {
		return err
	}
	_, err = c.do(ctx, request{method: http.MethodPost, path: p}, nil)
	return err
}

func (c *Client) GetState(ctx context.Context, driverID domain.DriverID) (dispatch.DriverState, error) {
	p, err := driverPath(driverID, "/state")
	if err != nil {
		return dispatch.DriverState{}, err
	}
	var out stateDTO
	if _, err := c.do(ctx, request{method: http.MethodGet, path: p, fresh: true}, &out); err != nil {
		return dispatch.DriverState{}, err
	}
	st := dispatch.DriverState{Load: NormalizeLoad(out.Load)}
	if err := CheckLoad(st.Load); err != nil {
		return dispatch.DriverState{}, err
	}
	if out.Driver != nil {
		st.OnShift = out.Driver.OnShift
	}
	return st, nil
}

func (c *Client) GetAssignment(ctx context.Context, driverID domain.DriverID) (*domain.Load, error) {
	p, err := driverPath(driverID, "/assignment")
	if err != nil {
		return nil, err
	}
	var out *LoadDTO
	status, err := c.do(ctx, request{method: http.MethodGet, path: p, fresh: true}, &out)
	if err != nil || status == http.StatusNoContent {
		return nil, err
	}
	l := NormalizeLoad(out)
	if err := CheckLoad(l); err != nil {
		return nil, err
	}
	return l, nil
}

func (c *Client) CompleteStop(ctx context.Context, driverID domain.DriverID, loadID domain.LoadID) (dispatch.CompleteStopResult, error) {
	p, err := loadPath(driverID, loadID, "/stops/complete")
	if err != nil {
		return dispatch.CompleteStopResult{}, err
	}
	var out completeStopDTO
	if _, err := c.do(ctx, request{method: http.MethodPost, path: p}, &out); err != nil {
		return dispatch.CompleteStopResult{}, err
	}
	res := dispatch.CompleteStopResult{
		Completed:      NormalizeLoad(out.Completed),
		NextAssignment: NormalizeLoad(out.NextAssignment),
	}
	if err := errors.Join(CheckLoad(res.Completed), CheckLoad(res.NextAssignment)); err != nil {
		return dispatch.CompleteStopResult{}, err
	}
	return res, nil
}

func (c *Client) RejectLoad(ctx context.Context, driverID domain.DriverID, loadID domain.LoadID) (dispatch.RejectOutcome, error) {
	p, err := loadPath(driverID, loadID, "/reject")
	if err != nil {
		return dispatch.RejectOutcome{}, err
	}
	var out rejectDTO
	if _, err := c.do(ctx, request{method: http.MethodPost, path: p}, &out); err != nil {
		return dispatch.RejectOutcome{}, err
	}
	res := dispatch.RejectOutcome{Result: out.Result}
	if t, ok := parseTime(out.ShiftEndedAt); ok {
		res.ShiftEndedAt = t
	}
	return res, nil
}

func (c *Client) ListLoads(ctx context.Context, status domain.LoadStatus) ([]domain.Load, error) {
	req := request{method: http.MethodGet, path: "/loads", fresh: true, query: url.Values{}}
	if status != "" {
		frag, err := runtime.StyleParamWithLocation("form", true, "status", runtime.ParamLocationQuery, string(status))
		if err != nil {
			return nil, err
		}
		parsed, err := url.ParseQuery(frag)
		if err != nil {
			return nil, err
		}
		for k, vs := range parsed {
			for _, v := range vs {
				req.query.Add(k, v)
			}
		}
	}

	var out []*LoadDTO
	if _, err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	loads := make([]domain.Load, 0, len(out))
	for _, dto := range out {
		if l := NormalizeLoad(dto); l != nil {
			loads = append(loads, *l)
		}
	}
	return loads, nil
}

func (c *Client) CreateLoad(ctx context.Context, pickup, dropoff domain.Coordinate) (domain.Load, error) {
	body := createLoadRequest{
		Pickup:  coordinateDTO{Lat: pickup.Lat, Lng: pickup.Lng},
		Dropoff: coordinateDTO{Lat: dropoff.Lat, Lng: dropoff.Lng},
	}
	var out LoadDTO
	if _, err := c.do(ctx, request{method: http.MethodPost, path: "/loads", body: body}, &out); err != nil {
		return domain.Load{}, err
	}
	l := NormalizeLoad(&out)
	if l == nil {
		return domain.Load{}, fmt.Errorf("httpgateway: create load response without id")
	}
	return *l, nil
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// fresh bypasses caches.
	fresh bool
}

// do sends req and decodes a 2xx JSON body into out. Non-2xx responses become *dispatch.APIError.
func (c *Client) do(ctx context.Context, req request, out any) (int, error) {
	u, err := url.Parse(c.base.String() + req.path)
	if err != nil {
		return 0, fmt.Errorf("httpgateway: %s %s: %w", req.method, req.path, err)
	}
	q := req.query
	if q == nil {
		q = url.Values{}
	}
	if req.fresh {
		q.Set(cacheBustParam, strconv.FormatInt(c.now().UnixMilli(), 10))
	}
	u.RawQuery = q.Encode()

	var body io.Reader
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return 0, fmt.Errorf("httpgateway: encode %s %s: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(b)
	}

	hr, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return 0, fmt.Errorf("httpgateway: %s %s: %w", req.method, req.path, err)
	}
	hr.Header.Set("Accept", "application/json")
	hr.Header.Set(HeaderCorrelationID, c.corrID())
	if req.body != nil {
		hr.Header.Set("Content-Type", "application/json")
	}
	if req.fresh {
		hr.Header.Set("Cache-Control", "no-store")
		hr.Header.Set("Pragma", "no-cache")
	}

	resp, err := c.hc.Do(hr)
	if err != nil {
		return 0, fmt.Errorf("httpgateway: %s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, decodeError(resp, req.path)
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("httpgateway: read %s %s: %w", req.method, req.path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("httpgateway: decode %s %s: %w", req.method, req.path, err)
	}
	return resp.StatusCode, nil
}

func decodeError(resp *http.Response, path string) error {
	apiErr := &dispatch.APIError{
		Status:        resp.StatusCode,
		Path:          path,
		CorrelationID: resp.Header.Get(HeaderCorrelationID),
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var dto errorDTO
	if isJSON(resp.Header.Get("Content-Type")) && json.Unmarshal(raw, &dto) == nil {
		apiErr.Code = strings.TrimSpace(dto.Code)
		apiErr.Message = dto.Message
		apiErr.Details = dto.Details
		if dto.Status != 0 {
			apiErr.Status = dto.Status
		}
		if dto.Path != "" {
			apiErr.Path = dto.Path
		}
		if dto.CorrelationID != "" {
			apiErr.CorrelationID = dto.CorrelationID
		}
		if t, ok := parseTime(dto.Timestamp); ok {
			apiErr.Timestamp = t
		}
	} else if s := strings.TrimSpace(string(raw)); s != "" {
		apiErr.Message = s
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && (mt == "application/json" || strings.HasSuffix(mt, "+json"))
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func driverPath(driverID domain.DriverID, suffix string) (string, error) {
	id, err := runtime.StyleParamWithLocation("simple", false, "driverId", runtime.ParamLocationPath, string(driverID))
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("httpgateway: empty driver id")
	}
	return "/drivers/" + id + suffix, nil
}

func loadPath(driverID domain.DriverID, loadID domain.LoadID, suffix string) (string, error) {
	base, err := driverPath(driverID, "")
	if err != nil {
		return "", err
	}
	id, err := runtime.StyleParamWithLocation("simple", false, "loadId", runtime.ParamLocationPath, string(loadID))
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("httpgateway: empty load id")
	}
	return base + "/loads/" + id + suffix, nil
}
