package app

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pritecards/internal/app/apiresp"
	"pritecards/internal/app/observability"
	"pritecards/internal/auth"
	"pritecards/internal/importer"
	"pritecards/internal/question"
	"pritecards/internal/report"
)

// Deps are the services the router mounts. DB may be nil in tests.
type Deps struct {
	DB        *sql.DB
	Keys      *auth.KeyRing
	Importer  *importer.Service
	Questions *question.Service
	Metrics   *observability.Collector
}

func NewRouter(cfg Config, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	authHandler := auth.NewHandler(deps.Keys)
	importHandler := importer.NewHandler(deps.Importer)
	questionHandler := question.NewHandler(deps.Questions)
	reportHandler := report.NewHandler(report.NewService(deps.Questions))
	limiter := NewIPRateLimiter(cfg.RateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.DB != nil {
			if err := deps.DB.PingContext(r.Context()); err != nil {
				apiresp.WriteError(w, r, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Get("/metrics", deps.Metrics.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(RateLimitMiddleware(limiter))
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAPIKey)
			importHandler.Routes(secure)
			questionHandler.Routes(secure)
			reportHandler.Routes(secure)
		})
	})

	return r
}
