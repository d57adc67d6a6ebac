package driversync

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/dispatch"
)

// Kind is the client-side classification of a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindAuth
	KindValidation
	KindShiftAlreadyActive
	KindShiftNotActive
	KindActiveLoadPresent
	KindNoActiveLoad
	KindNotLoggedIn
	KindReservationExpired
	KindLoadStateConflict
	KindAccessDenied
	KindLocationUnavailable
	KindNetwork
	KindCancelled
)

var kindNames = map[Kind]string{
	KindInternal:            "INTERNAL",
	KindAuth:                "AUTH",
	KindValidation:          "VALIDATION",
	KindShiftAlreadyActive:  "SHIFT_ALREADY_ACTIVE",
	KindShiftNotActive:      "SHIFT_NOT_ACTIVE",
	KindActiveLoadPresent:   "ACTIVE_LOAD_PRESENT",
	KindNoActiveLoad:        "NO_ACTIVE_LOAD",
	KindNotLoggedIn:         "NOT_LOGGED_IN",
	KindReservationExpired:  "RESERVATION_EXPIRED",
	KindLoadStateConflict:   "LOAD_STATE_CONFLICT",
	KindAccessDenied:        "ACCESS_DENIED",
	KindLocationUnavailable: "LOCATION_UNAVAILABLE",
	KindNetwork:             "NETWORK",
	KindCancelled:           "CANCELLED",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Recoverable reports whether the engine resolves this kind on its own by
// re-fetching state.
func (k Kind) Recoverable() bool {
	switch k {
	case KindReservationExpired, KindLoadStateConflict, KindNetwork:
		return true
	default:
		return false
	}
}

// Error is the failure type returned by every engine operation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err classifies as k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

var codeKinds = map[string]Kind{
	dispatch.CodeValidation:         KindValidation,
	dispatch.CodeDriverLocation:     KindValidation,
	dispatch.CodeUnauthorized:       KindAuth,
	dispatch.CodeDriverNotFound:     KindAuth,
	dispatch.CodeLoadNotFound:       KindLoadStateConflict,
	dispatch.CodeReservationExpired: KindReservationExpired,
	dispatch.CodeShiftNotActive:     KindShiftNotActive,
	dispatch.CodeActiveLoadPresent:  KindActiveLoadPresent,
	dispatch.CodeShiftAlreadyActive: KindShiftAlreadyActive,
	dispatch.CodeLoadStateConflict:  KindLoadStateConflict,
	dispatch.CodeDataIntegrity:      KindInternal,
	dispatch.CodeAccessDenied:       KindAccessDenied,
	dispatch.CodeInternal:           KindInternal,
}

// Classify maps a gateway failure onto a Kind.
//
// The stable backend code wins. The HTTP status is only consulted when the response
// carried no code at all; message text is never inspected.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCancelled, Message: "request cancelled", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindNetwork, Message: "request timed out", Err: err}
	}
	if errors.Is(err, dispatch.ErrMalformedLoad) {
		return &Error{Kind: KindInternal, Message: "dispatch service sent an inconsistent load", Err: err}
	}
	if ae, ok := dispatch.AsAPIError(err); ok {
		return &Error{Kind: classifyAPIError(ae), Code: ae.Code, Message: apiMessage(ae), Err: err}
	}
	return &Error{Kind: KindNetwork, Message: "dispatch service unreachable", Err: err}
}

func classifyAPIError(ae *dispatch.APIError) Kind {
	if ae.Code != "" {
		if k, ok := codeKinds[ae.Code]; ok {
			return k
		}
		return KindInternal
	}
	switch ae.Status {
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusForbidden:
		return KindAccessDenied
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusConflict:
		return KindLoadStateConflict
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindNetwork
	default:
		return KindInternal
	}
}

func apiMessage(ae *dispatch.APIError) string {
	if ae.Message != "" {
		return ae.Message
	}
	return http.StatusText(ae.Status)
}
