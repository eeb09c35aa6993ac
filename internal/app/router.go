package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/quillbooks/quillbooks/internal/accounts"
	"github.com/quillbooks/quillbooks/internal/balance"
	"github.com/quillbooks/quillbooks/internal/ledger"
	"github.com/quillbooks/quillbooks/internal/observability"
	"github.com/quillbooks/quillbooks/internal/suggest"
	"github.com/quillbooks/quillbooks/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	LedgerHandler  *ledger.Handler
	AccountHandler *accounts.Handler
	BalanceHandler *balance.Handler
	SuggestHandler *suggest.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with QuillBooks defaults.
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

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(RequireCompany)
		if params.LedgerHandler != nil {
			api.Route("/transactions", params.LedgerHandler.MountRoutes)
		}
		if params.AccountHandler != nil {
			api.Route("/accounts", params.AccountHandler.MountRoutes)
		}
		if params.BalanceHandler != nil {
			api.Route("/balances", params.BalanceHandler.MountRoutes)
		}
		if params.SuggestHandler != nil {
			api.Route("/suggestions", params.SuggestHandler.MountRoutes)
		}
	})

	return r
}
