package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/mail-ledger/internal/api/middleware"
	"github.com/dvloznov/mail-ledger/internal/apperrors"
	"github.com/dvloznov/mail-ledger/internal/ledger"
	"github.com/dvloznov/mail-ledger/internal/logger"
	"github.com/dvloznov/mail-ledger/internal/runs"
	"github.com/rs/zerolog"
)

// LedgerService is the part of ledger.Writer exposed over HTTP.
type LedgerService interface {
	Stats(ctx context.Context) (ledger.Stats, error)
	Backup(ctx context.Context) (string, error)
	Rows(ctx context.Context) ([]ledger.Row, error)
}

// BackupUploader copies a local backup file off the host.
type BackupUploader interface {
	UploadFile(ctx context.Context, filePath string) (string, error)
}

// LedgerHandler handles ledger endpoints.
type LedgerHandler struct {
	ledger   LedgerService
	uploader BackupUploader
	log      zerolog.Logger
}

// NewLedgerHandler creates a new ledger handler. uploader may be nil.
func NewLedgerHandler(l LedgerService, uploader BackupUploader, log zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger:   l,
		uploader: uploader,
		log:      log,
	}
}

// Stats handles GET /api/ledger/stats
func (h *LedgerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats(r.Context())
	if err != nil {
		requestLog(h.log, r).Error().Err(err).Msg("Failed to read ledger stats")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Ledger unavailable")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, stats)
}

// Backup handles POST /api/ledger/backup[?upload=true]
func (h *LedgerHandler) Backup(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithContext(r.Context(), *requestLog(h.log, r))

	upload, _ := strconv.ParseBool(r.URL.Query().Get("upload"))
	if upload && h.uploader == nil {
		middleware.WriteError(w, http.StatusBadRequest, "No archive bucket configured")
		return
	}

	location, err := h.ledger.Backup(ctx)
	if err != nil {
		requestLog(h.log, r).Error().Err(err).Msg("Failed to back up ledger")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to back up ledger")
		return
	}

	resp := map[string]string{"location": location}
	if upload {
		uri, err := h.uploader.UploadFile(ctx, location)
		if err != nil {
			requestLog(h.log, r).Error().Err(err).Str("location", location).Msg("Failed to upload backup")
			middleware.WriteError(w, http.StatusBadGateway, "Backup written but upload failed")
			return
		}
		resp["uri"] = uri
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Export handles GET /api/ledger/export
func (h *LedgerHandler) Export(w http.ResponseWriter, r *http.Request) {
	rows, err := h.ledger.Rows(r.Context())
	if err != nil {
		requestLog(h.log, r).Error().Err(err).Msg("Failed to read ledger rows")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Ledger unavailable")
		return
	}

	name := fmt.Sprintf("ledger_%s.csv", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := ledger.Export(w, rows); err != nil {
		requestLog(h.log, r).Error().Err(err).Msg("Failed to write export")
	}
}

// RunsHandler handles batch run endpoints.
type RunsHandler struct {
	store     runs.Store
	requester runs.Requester
	log       zerolog.Logger
}

// NewRunsHandler creates a new runs handler. requester may be nil, in which
// case batches cannot be triggered over HTTP.
func NewRunsHandler(store runs.Store, requester runs.Requester, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		store:     store,
		requester: requester,
		log:       log,
	}
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := runs.Filter{Status: runs.Status(query.Get("status"))}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	list, err := h.store.List(r.Context(), filter)
	if err != nil {
		requestLog(h.log, r).Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  list,
		"count": len(list),
	})
}

// LastRun handles GET /api/runs/last
func (h *RunsHandler) LastRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.Last(r.Context())
	h.writeRun(w, r, run, err)
}

// GetRun handles GET /api/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	run, err := h.store.Get(r.Context(), runID)
	h.writeRun(w, r, run, err)
}

func (h *RunsHandler) writeRun(w http.ResponseWriter, r *http.Request, run *runs.Run, err error) {
	switch {
	case errors.Is(err, apperrors.ErrRunNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Run not found")
	case err != nil:
		requestLog(h.log, r).Error().Err(err).Msg("Failed to get run")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get run")
	default:
		middleware.WriteJSON(w, http.StatusOK, run)
	}
}

// TriggerRun handles POST /api/runs
func (h *RunsHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if h.requester == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Batch processing is not running")
		return
	}

	accepted, err := h.requester.Request(runs.TriggerAPI)
	if err != nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Batch processing is shutting down")
		return
	}

	requestLog(h.log, r).Info().Bool("accepted", accepted).Msg("Batch requested over HTTP")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]bool{"queued": accepted})
}

// requestLog tags log with the id assigned by middleware.RequestID.
func requestLog(log zerolog.Logger, r *http.Request) *zerolog.Logger {
	l := log.With().Str("request_id", middleware.GetRequestID(r.Context())).Logger()
	return &l
}
