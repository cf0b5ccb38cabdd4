package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-pos/meridian-stock/internal/auth"
	"github.com/meridian-pos/meridian-stock/internal/ledger"
	"github.com/meridian-pos/meridian-stock/internal/observability"
	"github.com/meridian-pos/meridian-stock/internal/registry"
	"github.com/meridian-pos/meridian-stock/internal/reports"
	"github.com/meridian-pos/meridian-stock/internal/workflow/modifications"
	"github.com/meridian-pos/meridian-stock/internal/workflow/purchases"
	"github.com/meridian-pos/meridian-stock/internal/workflow/requests"
	"github.com/meridian-pos/meridian-stock/internal/workflow/transfers"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	AuthService *auth.Service

	// JobsRoutes mounts background-job endpoints (queue health, on-demand
	// runs) when the API process has a queue client configured.
	JobsRoutes func(chi.Router)

	RegistryHandler     *registry.Handler
	LedgerHandler       *ledger.Handler
	PurchaseHandler     *purchases.Handler
	TransferHandler     *transfers.Handler
	RequestHandler      *requests.Handler
	ModificationHandler *modifications.Handler
	ReportHandler       *reports.Handler
}

// NewRouter constructs the chi.Router for the engine.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if params.AuthService != nil && (params.Config == nil || !params.Config.AuthDisabled) {
			r.Use(auth.RequireClient(params.AuthService))
		}

		if params.RegistryHandler != nil {
			params.RegistryHandler.MountRoutes(r)
		}
		if params.LedgerHandler != nil {
			params.LedgerHandler.MountRoutes(r)
		}
		if params.PurchaseHandler != nil {
			r.Route("/purchases", params.PurchaseHandler.MountRoutes)
		}
		if params.TransferHandler != nil {
			r.Route("/transfers", params.TransferHandler.MountRoutes)
		}
		if params.RequestHandler != nil {
			r.Route("/stock-requests", params.RequestHandler.MountRoutes)
		}
		if params.ModificationHandler != nil {
			r.Route("/modifications", params.ModificationHandler.MountRoutes)
		}
		if params.ReportHandler != nil {
			r.Route("/reports", params.ReportHandler.MountRoutes)
		}
		if params.JobsRoutes != nil {
			r.Route("/jobs", params.JobsRoutes)
		}
	})

	return r
}
