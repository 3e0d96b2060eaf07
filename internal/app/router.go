package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/coa"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/observability"
	"github.com/odyssey-erp/ledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AccountsHandler *accounts.Handler
	CoAHandler      *coa.Handler
	JournalsHandler *journals.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with ledger defaults.
//
//	/clients/{clientID}/accounts                        account store, tree, import/export/seed
//	/clients/{clientID}/journal-entries                 tenant-wide listing and integrity report
//	/clients/{clientID}/entities/{entityID}/journal-entries  entry lifecycle
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

	r.Route("/clients/{clientID}", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			// Import, export and seed register literal paths, so they win over
			// /{accountID} regardless of mount order.
			if params.CoAHandler != nil {
				params.CoAHandler.MountRoutes(r)
			}
			if params.AccountsHandler != nil {
				params.AccountsHandler.MountRoutes(r)
			}
		})
		if params.JournalsHandler != nil {
			r.Route("/journal-entries", params.JournalsHandler.MountClientRoutes)
			r.Route("/entities/{entityID}/journal-entries", params.JournalsHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
