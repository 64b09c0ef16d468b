package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jcmexdev/saga-coordinator/internal/api/httpx/middlewares"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	// RateLimitRPM is the per-IP request budget per minute on the saga
	// routes. Zero disables limiting.
	RateLimitRPM int
}

func NewRouter(handler *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachRequestMetadata)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middlewares.RateLimit(opts.RateLimitRPM, time.Minute))

		r.Route("/saga-instances", func(r chi.Router) {
			r.Post("/", handler.CreateSagaInstance)
			r.Get("/{id}", handler.GetSagaInstance)
			r.Put("/{id}/status", handler.ChangeSagaInstanceStatus)
			r.Delete("/{id}", handler.DeleteSagaInstance)
			r.Get("/{id}/steps", handler.ListSagaInstanceSteps)
			r.Get("/{id}/logs", handler.ListSagaInstanceLogs)
		})

		r.Route("/saga-steps", func(r chi.Router) {
			r.Post("/", handler.CreateSagaStep)
			r.Get("/{id}", handler.GetSagaStep)
			r.Patch("/{id}", handler.UpdateSagaStep)
			r.Put("/{id}/status", handler.ChangeSagaStepStatus)
			r.Delete("/{id}", handler.DeleteSagaStep)
			r.Get("/{id}/logs", handler.ListSagaStepLogs)
		})
	})
	return r
}
