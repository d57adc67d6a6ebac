package devapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	clockport "github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/clock"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/dispatch"
)

// NewRouter serves the dispatch backend contract under /api.
//
// Assignment and stop-completion responses use the flat load shape; state and load
// listings use the nested summary shape, matching the production backend.
func NewRouter(drivers dispatch.Gateway, fleet dispatch.FleetGateway, clk clockport.Clock) http.Handler {
	h := &handlers{drivers: drivers, fleet: fleet, clk: clk}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlation)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/drivers/login", h.login)
		r.Route("/drivers/{driverId}", func(r chi.Router) {
			r.Post("/shift/start", h.startShift)
			r.Post("/shift/end", h.endShift)
			r.Get("/state", h.state)
			r.Get("/assignment", h.assignment)
			r.Post("/loads/{loadId}/stops/complete", h.completeStop)
			r.Post("/loads/{loadId}/reject", h.reject)
		})
		r.Get("/loads", h.listLoads)
		r.Post("/loads", h.createLoad)
	})
	return r
}
