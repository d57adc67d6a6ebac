package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/adapters/consoleapi"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/adapters/httpgateway"
	memjournal "github.com/Overland-East-Bay/load-dispatch-client/internal/adapters/memory/journal"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/adapters/memory/locator"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/adapters/messaging"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/adapters/postgres"
	pgjournal "github.com/Overland-East-Bay/load-dispatch-client/internal/adapters/postgres/journal"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/app/activity"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/app/driversync"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/app/fleet"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	platformclock "github.com/Overland-East-Bay/load-dispatch-client/internal/platform/clock"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/platform/config"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/platform/logging"
	journalport "github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/journal"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/location"
)

func main() {
	configPath := flag.String("config", os.Getenv("DRIVER_CLIENT_CONFIG"), "path to a YAML config file")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger("driver-client", cfg.Log.Level)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("driver client stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.ClientConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := platformclock.NewSystemClock()

	gw, err := httpgateway.New(cfg.Dispatch.URL, httpgateway.Options{
		HTTPClient: &http.Client{Timeout: cfg.Dispatch.HTTPTimeout},
		Clock:      clk,
	})
	if err != nil {
		return err
	}

	var loc location.Locator = locator.Unavailable{}
	if cfg.Location.DefaultLat != nil && cfg.Location.DefaultLng != nil {
		loc = locator.Static{At: domain.Coordinate{Lat: *cfg.Location.DefaultLat, Lng: *cfg.Location.DefaultLng}}
	}

	var j journalport.Journal
	switch cfg.Journal.Backend {
	case config.JournalPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Journal.DatabaseURL, postgres.PoolOptions{})
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
		j = pgjournal.NewStore(pool)
	default:
		j = memjournal.NewStore()
	}

	feed, err := messaging.Open(messaging.Options{
		Backend:      cfg.Feed.Backend,
		Topic:        cfg.Feed.Topic,
		MQTTBroker:   cfg.Feed.MQTTBroker,
		MQTTClientID: "driver-client",
		KafkaBrokers: cfg.Feed.KafkaBrokers,
	})
	if err != nil {
		return err
	}
	if feed != nil {
		defer func() {
			if err := feed.Close(); err != nil {
				logger.Warn("closing view feed", "error", err)
			}
		}()
	}

	engine := driversync.NewEngine(gw, clk, driversync.Options{
		StatePollInterval:      cfg.Sync.StatePollInterval,
		AssignmentPollInterval: cfg.Sync.AssignmentPollInterval,
		NoticeTTL:              cfg.Sync.NoticeTTL,
		LocationTimeout:        cfg.Sync.LocationTimeout,
		Locator:                loc,
		Logger:                 logger,
	})
	defer engine.Logout()

	recorder := activity.NewRecorder(j, feed, logger, 0)
	unsubscribe := engine.Subscribe(recorder.Handle)
	defer unsubscribe()

	var authMW func(http.Handler) http.Handler
	if cfg.Console.Token != "" {
		authMW = consoleapi.NewTokenMiddleware(cfg.Console.Token)
	} else {
		logger.Warn("console token is empty; console routes are unauthenticated")
	}
	handler := consoleapi.NewRouter(
		consoleapi.NewServer(engine, fleet.NewService(gw), j),
		consoleapi.RouterOptions{AuthMiddleware: authMW, AllowedOrigins: cfg.Console.AllowedOrigins},
	)
	srv := &http.Server{
		Addr:              cfg.Console.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return recorder.Run(gctx) })
	g.Go(func() error {
		logger.Info("console listening", "addr", cfg.Console.Addr, "dispatch_url", cfg.Dispatch.URL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
