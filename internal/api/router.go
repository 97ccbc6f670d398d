package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/outline-studio/engine/internal/api/handlers"
	mw "github.com/outline-studio/engine/internal/api/middleware"
	"github.com/outline-studio/engine/internal/services"
)

type Dependencies struct {
	HMACSecret []byte
	Services   *services.Services
	Store      handlers.Pinger
	Audits     handlers.AuditEnqueuer
	// RateLimit is requests per second per client IP. Zero disables it.
	RateLimit float64
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	// Built-in middleware
	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	if dep.RateLimit > 0 {
		r.Use(mw.RateLimit(dep.RateLimit, int(2*dep.RateLimit)+1))
	}
	r.Use(chimid.Compress(5))

	// Health and metrics
	hh := handlers.NewHealthHandler(dep.Store)
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	svc := dep.Services
	th := handlers.NewTreesHandler(svc.Trees, svc.Audit, dep.Audits)
	nh := handlers.NewNodesHandler(svc.Nodes, svc.Versions)
	rh := handlers.NewRelationsHandler(svc.Relations)
	oh := handlers.NewOutlineHandler(svc.Projection)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(mw.Auth(dep.HMACSecret))

		api.Route("/trees", func(tr chi.Router) {
			tr.Get("/", th.List)
			tr.Post("/", th.Create)

			tr.Route("/{treeID}", func(t chi.Router) {
				t.Get("/", th.Get)
				t.Get("/audit", th.Audit)
				t.Post("/audit", th.ScheduleAudit)
				t.Get("/outline", oh.Get)
				t.Get("/ancestry", rh.IsAncestor)

				t.Route("/nodes", func(nr chi.Router) {
					nr.Get("/", nh.List)
					nr.Post("/", nh.Create)
					nr.Get("/{nodeID}", nh.Get)
					nr.Put("/{nodeID}", nh.Update)
					nr.Delete("/{nodeID}", nh.Delete)
					nr.Get("/{nodeID}/parents", rh.Parents)
					nr.Get("/{nodeID}/children", rh.Children)
				})

				t.Route("/relations", func(rr chi.Router) {
					rr.Post("/", rh.Add)
					rr.Delete("/", rh.Remove)
					rr.Post("/move", rh.Move)
				})
			})
		})
	})

	return r
}
