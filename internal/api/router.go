package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"leakwatch/internal/data"
	"leakwatch/internal/metrics"
	"leakwatch/internal/utils"
)

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithError(w, data.NewAPIError(data.ErrorCodeMethodNotAllowed, "POST only", nil, http.StatusMethodNotAllowed))
}

func notFound(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithError(w, data.NewAPIError(data.ErrorCodeNotFound, "not found", nil, http.StatusNotFound))
}

// SetupDataRouter serves device ingest.
func SetupDataRouter(h *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.MethodNotAllowed(methodNotAllowed)
	r.NotFound(notFound)

	r.With(h.Auth.APIKeyMiddleware).Post("/ingest", h.HandleIngest)

	return r
}

// SetupUIRouter serves dashboards: JSON API, WebSocket and metrics.
func SetupUIRouter(h *APIHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.NotFound(notFound)

	r.Get("/ws", h.HandleWebSocket)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.HandleStatus)
		r.Get("/alerts", h.HandleAlerts)
		r.Get("/rooms/{room}/summary", h.HandleSummary)
		r.Get("/rooms/{room}/pipes/{pipe}/history", h.HandleHistory)
		r.Get("/rooms/{room}/pipes/{pipe}/chart", h.HandleChart)
		r.Post("/login", h.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.Auth.JWTMiddleware)
			r.Post("/alerts/test", h.HandleTestAlert)
			r.Post("/monitor/refresh", h.HandleRefresh)
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   h.Config.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
