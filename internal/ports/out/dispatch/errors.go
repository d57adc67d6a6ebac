package dispatch

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedLoad reports a load that breaks the status/stop invariant: an open
// status (RESERVED, IN_PROGRESS) without a current stop.
var ErrMalformedLoad = errors.New("dispatch: open load without a current stop")

// Stable backend error codes.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeDriverNotFound     = "DRIVER_NOT_FOUND"
	CodeLoadNotFound       = "LOAD_NOT_FOUND"
	CodeDriverLocation     = "DRIVER_LOCATION_UNKNOWN"
	CodeReservationExpired = "RESERVATION_EXPIRED"
	CodeShiftNotActive     = "SHIFT_NOT_ACTIVE"
	CodeActiveLoadPresent  = "ACTIVE_LOAD_PRESENT"
	CodeShiftAlreadyActive = "SHIFT_ALREADY_ACTIVE"
	CodeLoadStateConflict  = "LOAD_STATE_CONFLICT"
	CodeDataIntegrity      = "DATA_INTEGRITY_VIOLATION"
	CodeAccessDenied       = "ACCESS_DENIED"
	CodeInternal           = "INTERNAL_ERROR"
)

// APIError mirrors the backend error payload.
type APIError struct {
	Status        int
	Code          string
	Message       string
	Path          string
	CorrelationID string
	Timestamp     time.Time
	Details       map[string]any
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return fmt.Sprintf("dispatch: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("dispatch: %s: %s", e.Code, e.Message)
}

// Is reports whether the error carries the given code.
func (e *APIError) Is(code string) bool { return e != nil && e.Code == code }

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
