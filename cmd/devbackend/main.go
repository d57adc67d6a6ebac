package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/adapters/devapi"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/adapters/memory/dispatchbackend"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	platformclock "github.com/Overland-East-Bay/load-dispatch-client/internal/platform/clock"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/platform/config"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/platform/logging"
)

// Seed loads run between a few Denver-area points so local drivers get realistic work.
var seedRoutes = [][2]domain.Coordinate{
	{{Lat: 39.7392, Lng: -104.9903}, {Lat: 39.7555, Lng: -105.2211}},
	{{Lat: 40.0150, Lng: -105.2705}, {Lat: 39.8028, Lng: -105.0875}},
	{{Lat: 39.6133, Lng: -105.0166}, {Lat: 39.9205, Lng: -105.0867}},
}

func main() {
	_ = godotenv.Load()

	logger := logging.NewLogger("dev-dispatch-backend", os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadDevBackendConfigFromEnv()
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	clk := platformclock.NewSystemClock()
	backend := dispatchbackend.New(clk, cfg.ReservationTTL)
	for i := 0; i < cfg.SeedLoads; i++ {
		route := seedRoutes[i%len(seedRoutes)]
		if _, err := backend.CreateLoad(context.Background(), route[0], route[1]); err != nil {
			logger.Error("seeding loads", "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           devapi.NewRouter(backend, backend, clk),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("dev dispatch backend listening", "addr", cfg.Addr, "reservation_ttl", cfg.ReservationTTL.String(), "seed_loads", cfg.SeedLoads)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
