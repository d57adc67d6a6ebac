package consoleapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/app/driversync"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/app/fleet"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/app/notices"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/dispatch"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/journal"
)

const maxBody = 1 << 20

// Engine is the driver sync surface the console drives.
type Engine interface {
	View() driversync.View
	Notice() (notices.Notice, bool)
	Login(ctx context.Context, username string) (domain.DriverIdentity, error)
	Logout()
	Refresh(ctx context.Context) (driversync.View, error)
	StartShift(ctx context.Context, at domain.Coordinate) error
	UseCurrentLocation(ctx context.Context) (domain.Coordinate, error)
	EndShift(ctx context.Context) error
	AcquireAssignment(ctx context.Context) (*domain.Load, error)
	CompleteCurrentStop(ctx context.Context, loadID domain.LoadID) (dispatch.CompleteStopResult, error)
	RejectCurrentLoad(ctx context.Context, loadID domain.LoadID) error
}

var _ Engine = (*driversync.Engine)(nil)

// Server implements the console handlers.
type Server struct {
	Engine  Engine
	Fleet   *fleet.Service
	Journal journal.Journal
}

func NewServer(engine Engine, fleetSvc *fleet.Service, j journal.Journal) *Server {
	return &Server{Engine: engine, Fleet: fleetSvc, Journal: j}
}

func (s *Server) getView(w http.ResponseWriter, r *http.Request) {
	s.writeView(w, http.StatusOK)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := s.Engine.Login(r.Context(), req.Username); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.writeView(w, http.StatusOK)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.Engine.Logout()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Engine.Refresh(r.Context()); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.writeView(w, http.StatusOK)
}

func (s *Server) startShift(w http.ResponseWriter, r *http.Request) {
	var req coordinateDTO
	if !decode(w, r, &req) {
		return
	}
	at, details := req.toDomain()
	if details != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION", "lat and lng are required", details)
		return
	}
	if err := s.Engine.StartShift(r.Context(), at); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.writeView(w, http.StatusOK)
}

func (s *Server) startShiftHere(w http.ResponseWriter, r *http.Request) {
	at, err := s.Engine.UseCurrentLocation(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.Engine.StartShift(r.Context(), at); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.writeView(w, http.StatusOK)
}

func (s *Server) endShift(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.EndShift(r.Context()); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.writeView(w, http.StatusOK)
}

func (s *Server) acquire(w http.ResponseWriter, r *http.Request) {
	l, err := s.Engine.AcquireAssignment(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if l == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, loadResponse{Load: loadFromDomain(l)})
}

func (s *Server) completeStop(w http.ResponseWriter, r *http.Request) {
	res, err := s.Engine.CompleteCurrentStop(r.Context(), domain.LoadID(chi.URLParam(r, "loadId")))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completeStopResponse{
		Completed:      loadFromDomain(res.Completed),
		NextAssignment: loadFromDomain(res.NextAssignment),
		View:           s.viewDocument(),
	})
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.RejectCurrentLoad(r.Context(), domain.LoadID(chi.URLParam(r, "loadId"))); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.writeView(w, http.StatusOK)
}

func (s *Server) listLoads(w http.ResponseWriter, r *http.Request) {
	status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
	loads, err := s.Fleet.ListLoads(r.Context(), status)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	out := make([]*loadDTO, 0, len(loads))
	for i := range loads {
		out = append(out, loadFromDomain(&loads[i]))
	}
	writeJSON(w, http.StatusOK, loadsResponse{Loads: out})
}

func (s *Server) createLoad(w http.ResponseWriter, r *http.Request) {
	var req createLoadRequest
	if !decode(w, r, &req) {
		return
	}
	l, err := s.Fleet.CreateLoad(r.Context(), fleet.CreateLoadInput{
		Pickup:  req.Pickup.coordinate(),
		Dropoff: req.Dropoff.coordinate(),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loadResponse{Load: loadFromDomain(&l)})
}

func (s *Server) listActivity(w http.ResponseWriter, r *http.Request) {
	v := s.Engine.View()
	if v.Identity == nil {
		writeError(w, r, http.StatusUnauthorized, driversync.KindNotLoggedIn.String(), "no driver is logged in", nil)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION", "invalid limit", map[string]any{"limit": "must be an integer between 1 and 500"})
			return
		}
		limit = n
	}
	entries, err := s.Journal.ListByDriver(r.Context(), v.Identity.ID, limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "activity unavailable", nil)
		return
	}
	out := make([]activityDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, activityFromEntry(e))
	}
	writeJSON(w, http.StatusOK, activityResponse{Entries: out})
}

func (s *Server) writeView(w http.ResponseWriter, status int) {
	writeJSON(w, status, s.viewDocument())
}

func (s *Server) viewDocument() viewDTO {
	n, live := s.Engine.Notice()
	return viewFromDomain(s.Engine.View(), n, live)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(dst)
	if err == nil {
		return true
	}
	msg := "invalid JSON body"
	if errors.Is(err, io.EOF) {
		msg = "missing request body"
	}
	writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION", msg, nil)
	return false
}
