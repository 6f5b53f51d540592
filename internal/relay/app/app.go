package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cgi"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/ltirelay/internal/relay/grader"
	httpapi "github.com/aussiebroadwan/ltirelay/internal/relay/http"
	"github.com/aussiebroadwan/ltirelay/internal/relay/metrics"
	"github.com/aussiebroadwan/ltirelay/internal/relay/service"
	"github.com/aussiebroadwan/ltirelay/internal/relay/store"
	"github.com/aussiebroadwan/ltirelay/pkg/httpx"
	"github.com/aussiebroadwan/ltirelay/pkg/ltix"
	"github.com/aussiebroadwan/ltirelay/pkg/slogx"
	"golang.org/x/sync/errgroup"
)

// BuildVersion is overridden at build time via -ldflags "-X".
var BuildVersion = "v0.1.0"

// Application encapsulates the relay with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	sessions  store.Sessions
	metrics   *metrics.Metrics
	evaluator grader.Evaluator // nil when no AI provider is configured

	// Services
	launchService       *service.LaunchService
	gradingService      *service.GradingService
	outcomeRelay        *service.OutcomeRelay
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "ltirelay",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  cfg.LogOutput,
		}),
		metrics: metrics.New(),
	}

	sessions, err := OpenSessions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.sessions = sessions
	app.logger.Info("session store ready", "backend", cfg.SessionBackend)

	app.initEvaluator(ctx)
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler returns the full route table.
func (app *Application) Handler() http.Handler { return app.router }

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Run serves HTTP until SIGINT or SIGTERM, then shuts down gracefully
func (app *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Serve(ctx)
}

// Serve serves HTTP until ctx is cancelled or the listener fails.
func (app *Application) Serve(ctx context.Context) error {
	app.housekeepingService.Start()

	app.logger.Info("ltirelay starting", "port", app.cfg.Port, "version", BuildVersion)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutdown requested", "cause", context.Cause(gctx))
		return app.Shutdown()
	})

	return g.Wait()
}

// Shutdown stops the server, then housekeeping, then closes the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down ltirelay...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.sessions.Close(); err != nil {
		app.logger.Error("error closing session store", "error", err)
		return err
	}

	app.logger.Info("ltirelay stopped")
	return nil
}

// ServeCGI answers the single request described by the CGI environment
// with the named endpoint and releases the store.
func (app *Application) ServeCGI(endpoint string) error {
	defer func() {
		if err := app.sessions.Close(); err != nil {
			app.logger.Error("error closing session store", "error", err)
		}
	}()

	h, ok := app.router.Endpoint(endpoint)
	if !ok {
		return fmt.Errorf("unknown endpoint %q", endpoint)
	}
	if err := cgi.Serve(h); err != nil {
		return fmt.Errorf("cgi: %w", err)
	}
	return nil
}

// Sweep removes expired sessions once and closes the store. It backs the
// gc command for deployments that sweep from cron, so a failed sweep is
// returned rather than logged.
func (app *Application) Sweep(ctx context.Context) (int, error) {
	deleted, err := app.sessions.Sweep(ctx)
	app.metrics.Swept(deleted)
	if err != nil {
		err = fmt.Errorf("session sweep: %w", err)
	}
	return deleted, errors.Join(err, app.sessions.Close())
}

// initEvaluator builds the AI client. Without one the service still takes
// launches, and grade requests fail with success=false.
func (app *Application) initEvaluator(ctx context.Context) {
	evaluator, err := grader.New(ctx, app.cfg.Grader)
	if err != nil {
		app.logger.Warn("grading disabled", "provider", app.cfg.Grader.Provider, "error", err)
		return
	}
	app.evaluator = evaluator
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.launchService = &service.LaunchService{
		Sessions:    app.sessions,
		DefaultPage: app.cfg.DefaultPage,
		Metrics:     app.metrics,
	}

	app.outcomeRelay = service.NewOutcomeRelay(
		ltix.NewURLPolicy(app.cfg.AllowedDomains, app.cfg.BaseURL),
		app.cfg.ConsumerSecrets,
		app.cfg.OutcomeTimeout,
	)
	app.outcomeRelay.Metrics = app.metrics
	if len(app.cfg.ConsumerSecrets) == 0 && app.cfg.SendGrade {
		app.logger.Warn("no LTI consumer secrets configured, outcomes cannot be signed")
	}

	app.gradingService = &service.GradingService{
		Evaluator:          app.evaluator,
		Extractor:          ltix.NewGradeExtractor(app.cfg.GradeIdentifier),
		Sessions:           app.sessions,
		Outcomes:           app.outcomeRelay,
		SendGrade:          app.cfg.SendGrade,
		EvaluatorTimeout:   app.cfg.EvaluatorTimeout,
		EmptySubmissionMax: app.cfg.EmptySubmissionMax,
		Metrics:            app.metrics,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.sessions,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	app.housekeepingService.Metrics = app.metrics
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		BuildVersion,
		app.sessions,
		httpx.NewOriginPolicy(app.cfg.AllowedOrigins),
		app.logger,
	)

	// Wire services to router
	router.LaunchService = app.launchService
	router.GradingService = app.gradingService
	router.Metrics = app.metrics
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
