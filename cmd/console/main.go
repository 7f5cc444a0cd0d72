package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/puygroup/pila-console/internal/accredit"
	"github.com/puygroup/pila-console/internal/app"
	"github.com/puygroup/pila-console/internal/concil"
	"github.com/puygroup/pila-console/internal/extracts"
	"github.com/puygroup/pila-console/internal/ledger"
	"github.com/puygroup/pila-console/internal/logquery"
	"github.com/puygroup/pila-console/internal/observability"
	"github.com/puygroup/pila-console/internal/pila"
	"github.com/puygroup/pila-console/internal/platform/cache"
	"github.com/puygroup/pila-console/internal/rezagos"
	"github.com/puygroup/pila-console/internal/shared"
	"github.com/puygroup/pila-console/internal/validation"
	"github.com/puygroup/pila-console/internal/view"
	"github.com/puygroup/pila-console/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "pila_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	pilaClient := pila.NewClient(cfg.PilaAPIURL, cfg.PilaAPITimeout, pila.WithObserver(func(endpoint string, err error) {
		metrics.ObserveRemote("pila", endpoint, err)
	}))
	ledgerClient := ledger.NewClient(cfg.LedgerAPIURL, cfg.LedgerAPITimeout, ledger.WithObserver(func(endpoint string, err error) {
		metrics.ObserveRemote("ledger", endpoint, err)
	}))

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	batchStore := validation.NewStore()
	validationHandler := validation.NewHandler(logger, pilaClient, batchStore, templates, csrfManager, jobsClient)

	logRegistry := logquery.NewRegistry(func() *logquery.Controller {
		return logquery.NewController(pilaClient, logquery.DefaultLogPageSize)
	})
	logHandler := logquery.NewHandler(logger, logRegistry, templates, csrfManager)

	extractsHandler := extracts.NewHandler(logger, pilaClient, templates, csrfManager)
	concilHandler := concil.NewHandler(logger, pilaClient, templates, csrfManager)

	completionStore := rezagos.NewCompletionStore(redisClient)
	rezagosHandler := rezagos.NewHandler(logger, pilaClient, completionStore, jobsClient, templates, csrfManager)

	accreditHandler := accredit.NewHandler(logger, pilaClient, templates, csrfManager)
	ledgerHandler := ledger.NewHandler(logger, ledgerClient, templates, csrfManager)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Templates:         templates,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		ValidationHandler: validationHandler,
		LogHandler:        logHandler,
		ExtractsHandler:   extractsHandler,
		ConcilHandler:     concilHandler,
		RezagosHandler:    rezagosHandler,
		AccreditHandler:   accreditHandler,
		LedgerHandler:     ledgerHandler,
		JobsHandler:       jobsHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
