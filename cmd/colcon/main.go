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

	"github.com/hibiken/asynq"

	"github.com/colcon/colcon-site/internal/app"
	"github.com/colcon/colcon-site/internal/events"
	"github.com/colcon/colcon-site/internal/i18n"
	"github.com/colcon/colcon-site/internal/observability"
	"github.com/colcon/colcon-site/internal/platform/redisx"
	"github.com/colcon/colcon-site/internal/registration"
	"github.com/colcon/colcon-site/jobs"
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
	slog.SetDefault(logger)

	store, err := registration.NewFileStore(registration.StoreOptions{
		Path:        cfg.StorePath,
		Description: cfg.StoreDescription,
		Version:     cfg.StoreVersion,
	})
	if err != nil {
		logger.Error("open store", slog.Any("error", err))
		os.Exit(1)
	}

	var publisher events.Publisher = events.NopPublisher{}
	var jobHandler *jobs.Handler
	if cfg.RedisEnabled() {
		redisClient, err := redisx.New(ctx, cfg.RedisAddr)
		if err != nil {
			// Registration works without Redis; events are best effort.
			logger.Warn("redis unavailable, events disabled", slog.Any("error", err))
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
			publisher = events.NewRedisPublisher(redisClient, cfg.EventsChannel)

			inspector := asynq.NewInspector(redisx.AsynqOpt(cfg.RedisAddr))
			defer func() {
				_ = inspector.Close()
			}()
			jobHandler = jobs.NewHandler(inspector, logger)
		}
	}

	metrics := observability.NewMetrics()
	messages := i18n.NewLocalizer()
	service := registration.NewService(store, registration.ServiceConfig{
		Publisher:     publisher,
		Metrics:       metrics,
		Logger:        logger,
		FoldEmailCase: cfg.EmailCaseInsensitive,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		Messages:            messages,
		RegistrationHandler: registration.NewHandler(logger, service, messages),
		JobHandler:          jobHandler,
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("api_prefix", cfg.APIPrefix),
			slog.String("store", store.Path()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
