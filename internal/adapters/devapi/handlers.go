package devapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	clockport "github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/clock"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/dispatch"
)

const maxBody = 1 << 20

type handlers struct {
	drivers dispatch.Gateway
	fleet   dispatch.FleetGateway
	clk     clockport.Clock
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.drivers.Login(r.Context(), req.Username)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.drivers.GetState(r.Context(), id.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, driverDTO{ID: string(id.ID), Name: id.DisplayName, OnShift: st.OnShift})
}

func (h *handlers) startShift(w http.ResponseWriter, r *http.Request) {
	var req point
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.drivers.StartShift(r.Context(), driverID(r), domain.Coordinate{Lat: req.Lat, Lng: req.Lng}); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) endShift(w http.ResponseWriter, r *http.Request) {
	if err := h.drivers.EndShift(r.Context(), driverID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	id := driverID(r)
	st, err := h.drivers.GetState(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	noStore(w)
	writeJSON(w, http.StatusOK, stateResponse{
		Driver: driverDTO{ID: string(id), OnShift: st.OnShift},
		Load:   summaryFromDomain(st.Load),
	})
}

func (h *handlers) assignment(w http.ResponseWriter, r *http.Request) {
	l, err := h.drivers.GetAssignment(r.Context(), driverID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	noStore(w)
	if l == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, assignmentFromDomain(l))
}

func (h *handlers) completeStop(w http.ResponseWriter, r *http.Request) {
	res, err := h.drivers.CompleteStop(r.Context(), driverID(r), loadID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completeStopResponse{
		Completed:      assignmentFromDomain(res.Completed),
		NextAssignment: assignmentFromDomain(res.NextAssignment),
	})
}

func (h *handlers) reject(w http.ResponseWriter, r *http.Request) {
	out, err := h.drivers.RejectLoad(r.Context(), driverID(r), loadID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rejectResponse{
		DriverID:     string(driverID(r)),
		LoadID:       string(loadID(r)),
		Result:       out.Result,
		ShiftEndedAt: out.ShiftEndedAt,
	})
}

func (h *handlers) listLoads(w http.ResponseWriter, r *http.Request) {
	var status domain.LoadStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		st, ok := domain.ParseLoadStatus(strings.ToUpper(raw))
		if !ok {
			h.writeError(w, r, &dispatch.APIError{
				Status:  http.StatusBadRequest,
				Code:    dispatch.CodeValidation,
				Message: "unknown load status",
				Details: map[string]any{"status": raw},
			})
			return
		}
		status = st
	}
	loads, err := h.fleet.ListLoads(r.Context(), status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]*loadSummary, 0, len(loads))
	for i := range loads {
		out = append(out, summaryFromDomain(&loads[i]))
	}
	noStore(w)
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) createLoad(w http.ResponseWriter, r *http.Request) {
	var req createLoadRequest
	if !h.decode(w, r, &req) {
		return
	}
	details := map[string]any{}
	if req.Pickup == nil {
		details["pickup"] = "is required"
	}
	if req.Dropoff == nil {
		details["dropoff"] = "is required"
	}
	if len(details) > 0 {
		h.writeError(w, r, &dispatch.APIError{Status: http.StatusBadRequest, Code: dispatch.CodeValidation, Message: "pickup and dropoff are required", Details: details})
		return
	}
	l, err := h.fleet.CreateLoad(r.Context(),
		domain.Coordinate{Lat: req.Pickup.Lat, Lng: req.Pickup.Lng},
		domain.Coordinate{Lat: req.Dropoff.Lat, Lng: req.Dropoff.Lng})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, summaryFromDomain(&l))
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(dst)
	if err == nil {
		return true
	}
	msg := "malformed request body"
	if errors.Is(err, io.EOF) {
		msg = "missing request body"
	}
	h.writeError(w, r, &dispatch.APIError{Status: http.StatusBadRequest, Code: dispatch.CodeValidation, Message: msg})
	return false
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := dispatch.AsAPIError(err)
	if !ok {
		ae = &dispatch.APIError{Status: http.StatusInternalServerError, Code: dispatch.CodeInternal, Message: "internal error"}
	}
	status := ae.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{
		Code:          ae.Code,
		Message:       ae.Message,
		Status:        status,
		Path:          r.URL.Path,
		CorrelationID: correlationID(r.Context()),
		Timestamp:     h.clk.Now().UTC().Format(time.RFC3339Nano),
		Details:       ae.Details,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}

func driverID(r *http.Request) domain.DriverID {
	return domain.DriverID(chi.URLParam(r, "driverId"))
}

func loadID(r *http.Request) domain.LoadID {
	return domain.LoadID(chi.URLParam(r, "loadId"))
}
