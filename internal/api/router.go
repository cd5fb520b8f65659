package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/workitems/internal/api/handler"
	apimw "github.com/notifyhub/workitems/internal/api/middleware"
	"github.com/notifyhub/workitems/internal/domain"
	"github.com/notifyhub/workitems/internal/queue"
	"github.com/notifyhub/workitems/internal/service"
)

// Options carries what the router needs beyond the service.
type Options struct {
	JWTSecret string
	Checks    map[string]handler.Check
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc *service.WorkItemService,
	q queue.Queue,
	reg prometheus.Gatherer,
	opts Options,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)        // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	rh := handler.NewReportHandler(svc)
	mh := handler.NewMetricsHandler(q)
	hh := handler.NewHealthHandler(opts.Checks)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Get("/ready", hh.Ready)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apimw.JWTAuth(opts.JWTSecret))

		for segment, kind := range handler.Collections {
			wh := handler.NewWorkItemHandler(svc, kind, logger)
			r.Route("/"+segment, func(r chi.Router) {
				r.Post("/", wh.Create)
				r.Get("/", wh.List)
				r.Get("/{id}", wh.Get)
				r.Patch("/{id}", wh.Update)
				r.Delete("/{id}", wh.Delete)
				r.Get("/{id}/children", wh.Children)
				if kind == domain.KindTask {
					r.Get("/overdue", rh.Overdue)
				}
			})
		}

		r.Get("/statistics/{kind}", rh.Statistics)
		r.Get("/dead-letters", rh.DeadLetters)

		// JSON metrics snapshot
		r.Get("/metrics", mh.GetMetrics)
	})

	return r
}
