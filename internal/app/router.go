package app

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/colcon/colcon-site/internal/i18n"
	"github.com/colcon/colcon-site/internal/observability"
	"github.com/colcon/colcon-site/internal/platform/httpx"
	"github.com/colcon/colcon-site/internal/registration"
	"github.com/colcon/colcon-site/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	Messages            *i18n.Localizer
	RegistrationHandler *registration.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	prefix := "/api"
	if params.Config != nil && params.Config.APIPrefix != "" {
		prefix = params.Config.APIPrefix
	}
	r.Route(prefix, func(api chi.Router) {
		api.NotFound(func(w http.ResponseWriter, r *http.Request) {
			httpx.Fail(w, http.StatusNotFound, params.Messages.Translate(r.Header.Get("Accept-Language"), i18n.MsgNotFound))
		})
		api.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			httpx.Fail(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
		})
		if params.RegistrationHandler != nil {
			params.RegistrationHandler.MountRoutes(api)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.Config != nil && params.Config.StaticDir != "" {
		if info, err := os.Stat(params.Config.StaticDir); err != nil || !info.IsDir() {
			logger.Error("static dir unavailable", slog.String("dir", params.Config.StaticDir), slog.Any("error", err))
		} else {
			fileServer := http.FileServer(http.Dir(params.Config.StaticDir))
			r.Handle("/*", staticCacheHandler(fileServer))
		}
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
