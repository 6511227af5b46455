package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eventstock/stockledger/internal/challan"
	"github.com/eventstock/stockledger/internal/inventory"
	"github.com/eventstock/stockledger/internal/maintenance"
	"github.com/eventstock/stockledger/internal/masterdata"
	"github.com/eventstock/stockledger/internal/observability"
	"github.com/eventstock/stockledger/internal/procurement"
	"github.com/eventstock/stockledger/internal/rbac"
	"github.com/eventstock/stockledger/internal/reporting"
	"github.com/eventstock/stockledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Metrics            *observability.Metrics
	MasterDataHandler  *masterdata.Handler
	InventoryHandler   *inventory.Handler
	ChallanHandler     *challan.Handler
	ProcurementHandler *procurement.Handler
	MaintenanceHandler *maintenance.Handler
	ReportingHandler   *reporting.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
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
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rbac.ActorFromHeaders)
		if params.MasterDataHandler != nil {
			params.MasterDataHandler.MountRoutes(r)
		}
		if params.InventoryHandler != nil {
			params.InventoryHandler.MountRoutes(r)
		}
		if params.ReportingHandler != nil {
			params.ReportingHandler.MountRoutes(r)
		}
		if params.ChallanHandler != nil {
			params.ChallanHandler.MountRoutes(r)
		}
		if params.ProcurementHandler != nil {
			params.ProcurementHandler.MountRoutes(r)
		}
		if params.MaintenanceHandler != nil {
			params.MaintenanceHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			params.JobHandler.MountAPIRoutes(r)
		}
	})

	return r
}
