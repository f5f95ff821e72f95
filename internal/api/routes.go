// Package api exposes ledger and batch status over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/mail-ledger/internal/api/handlers"
	"github.com/dvloznov/mail-ledger/internal/api/middleware"
	"github.com/rs/zerolog"
)

// Options configures NewHandler.
type Options struct {
	Ledger   *handlers.LedgerHandler
	Runs     *handlers.RunsHandler
	APIToken string
	Log      zerolog.Logger
}

// NewHandler builds the routed and wrapped HTTP handler.
func NewHandler(opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/ledger/stats", opts.Ledger.Stats)
	mux.HandleFunc("POST /api/ledger/backup", opts.Ledger.Backup)
	mux.HandleFunc("GET /api/ledger/export", opts.Ledger.Export)

	mux.HandleFunc("GET /api/runs", opts.Runs.ListRuns)
	mux.HandleFunc("POST /api/runs", opts.Runs.TriggerRun)
	mux.HandleFunc("GET /api/runs/last", opts.Runs.LastRun)
	mux.HandleFunc("GET /api/runs/{id}", opts.Runs.GetRun)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.RequestID(
		middleware.Recovery(opts.Log)(
			middleware.Logger(opts.Log)(
				middleware.CORS(
					middleware.Auth(opts.APIToken)(mux),
				),
			),
		),
	)
}
