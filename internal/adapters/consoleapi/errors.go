package consoleapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/nullable"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/app/driversync"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/app/fleet"
)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string                            `json:"code"`
	Message   string                            `json:"message"`
	Details   nullable.Nullable[map[string]any] `json:"details,omitempty"`
	RequestID nullable.Nullable[string]         `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string, details map[string]any) {
	var er errorResponse
	er.Error.Code = code
	er.Error.Message = message
	if details != nil {
		er.Error.Details = nullable.NewNullableWithValue(details)
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		er.Error.RequestID = nullable.NewNullableWithValue(rid)
	}
	writeJSON(w, status, er)
}

// writeAppError maps engine and fleet errors to the console envelope.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *fleet.Error
	if errors.As(err, &fe) {
		writeError(w, r, fe.Status, fe.Code, fe.Message, fe.Details)
		return
	}

	var de *driversync.Error
	if !errors.As(err, &de) {
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	var details map[string]any
	if de.Code != "" {
		details = map[string]any{"backendCode": de.Code}
	}
	writeError(w, r, statusForKind(de.Kind), de.Kind.String(), de.Message, details)
}

func statusForKind(k driversync.Kind) int {
	switch k {
	case driversync.KindValidation:
		return http.StatusUnprocessableEntity
	case driversync.KindAuth, driversync.KindNotLoggedIn:
		return http.StatusUnauthorized
	case driversync.KindAccessDenied:
		return http.StatusForbidden
	case driversync.KindShiftAlreadyActive, driversync.KindShiftNotActive, driversync.KindActiveLoadPresent,
		driversync.KindNoActiveLoad, driversync.KindLoadStateConflict, driversync.KindReservationExpired:
		return http.StatusConflict
	case driversync.KindNetwork:
		return http.StatusBadGateway
	case driversync.KindCancelled, driversync.KindLocationUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
