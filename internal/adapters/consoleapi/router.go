package consoleapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	// AuthMiddleware guards every route except /healthz. Nil leaves the console open.
	AuthMiddleware func(http.Handler) http.Handler
	// AllowedOrigins enables CORS for browser consoles.
	AllowedOrigins []string
}

// NewRouter constructs the operator console router.
func NewRouter(s *Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}
	if opts.AuthMiddleware != nil {
		r.Use(opts.AuthMiddleware)
	}

	// Health endpoint is unauthenticated (the auth middleware lets it through).
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/view", s.getView)
	r.Post("/session", s.login)
	r.Delete("/session", s.logout)
	r.Post("/refresh", s.refresh)
	r.Post("/shift/start", s.startShift)
	r.Post("/shift/start/here", s.startShiftHere)
	r.Post("/shift/end", s.endShift)
	r.Post("/assignment", s.acquire)
	r.Post("/loads/{loadId}/complete", s.completeStop)
	r.Post("/loads/{loadId}/reject", s.reject)

	r.Get("/fleet/loads", s.listLoads)
	r.Post("/fleet/loads", s.createLoad)

	r.Get("/activity", s.listActivity)
	return r
}
