package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	accountshandler "eventgate/internal/accounts/handler"
	checkpointhandler "eventgate/internal/checkpoint/handler"
	guesthandler "eventgate/internal/guest/handler"
	jwttoken "eventgate/internal/jwt_token"
	"eventgate/internal/platform/config"
	"eventgate/internal/platform/health"
	"eventgate/internal/platform/logger"
	"eventgate/internal/platform/metrics"
	"eventgate/internal/platform/middleware"
)

const (
	requestTimeout  = 10 * time.Second
	shutdownTimeout = 15 * time.Second
	poolStatsPeriod = 15 * time.Second
)

// main wires infrastructure, services and routes. Business logic lives in
// the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	log.Info("initializing eventgate",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"store", cfg.Store,
		"checkpoints", cfg.Event.Checkpoints,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	infra, err := openInfra(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	app, err := buildApp(ctx, cfg, infra, reg, log)
	if err != nil {
		return err
	}
	defer app.auditor.Close()

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "eventgate", cfg.TokenTTL)
	staffAuth := middleware.RequireStaff(jwttoken.NewAdapter(jwtService), log)
	accounts := buildAccounts(cfg, infra, app.auditor, jwtService, log)

	healthHandler := health.New(cfg.Environment)
	infra.registerChecks(healthHandler)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Device)
	r.Use(metrics.New(reg).Middleware)
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.Timeout(requestTimeout))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	accountsHTTP := accountshandler.New(accounts, log)
	accountsHTTP.RegisterPublic(r)

	guestsHTTP := guesthandler.New(app.guests, log)
	checkpointsHTTP := checkpointhandler.New(app.checkpoints, app.checkpoints.Catalog(), log)
	r.Group(func(r chi.Router) {
		r.Use(staffAuth)
		checkpointsHTTP.Register(r)
		guestsHTTP.Register(r)
		accountsHTTP.RegisterStaff(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin", log))
			accountsHTTP.RegisterAdmin(r)
			guestsHTTP.RegisterAdmin(r)
		})
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if infra.redis != nil {
		g.Go(func() error {
			infra.redis.ReportPoolStats(gctx, poolStatsPeriod)
			return nil
		})
	}
	if app.ledger != nil {
		g.Go(func() error {
			return app.ledger.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
