package app

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// routes mounts the plan API plus the operational outbox endpoints. The
// /internal routes are for operators; the gateway keeps them off the public
// surface.
func (a *App) routes(api http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/internal/outbox", a.handleOutboxSummary)
	r.Post("/internal/outbox/requeue", a.handleOutboxRequeue)
	r.Mount("/", api)
	return r
}

type outboxSummaryResponse struct {
	PendingCount      int    `json:"pending_count"`
	ProcessingCount   int    `json:"processing_count"`
	FailedCount       int    `json:"failed_count"`
	DeadCount         int    `json:"dead_count"`
	OldestPendingUser string `json:"oldest_pending_user,omitempty"`
	OldestPendingSeq  uint64 `json:"oldest_pending_seq,omitempty"`
	OldestPendingAt   string `json:"oldest_pending_at,omitempty"`
}

func (a *App) handleOutboxSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.events.GetOutboxSummary(r.Context())
	if err != nil {
		a.logger.Error("outbox summary failed", zap.Error(err))
		http.Error(w, "outbox summary failed", http.StatusInternalServerError)
		return
	}
	resp := outboxSummaryResponse{
		PendingCount:      summary.PendingCount,
		ProcessingCount:   summary.ProcessingCount,
		FailedCount:       summary.FailedCount,
		DeadCount:         summary.DeadCount,
		OldestPendingUser: summary.OldestPendingUser,
		OldestPendingSeq:  summary.OldestPendingSeq,
	}
	if !summary.OldestPendingAt.IsZero() {
		resp.OldestPendingAt = summary.OldestPendingAt.UTC().Format(time.RFC3339)
	}
	writeOpsJSON(w, http.StatusOK, resp)
}

func (a *App) handleOutboxRequeue(w http.ResponseWriter, r *http.Request) {
	limit := a.cfg.OutboxBatchSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	requeued, err := a.events.RequeueDeadOutboxRows(r.Context(), limit, time.Now().UTC())
	if err != nil {
		a.logger.Error("outbox requeue failed", zap.Error(err))
		http.Error(w, "outbox requeue failed", http.StatusInternalServerError)
		return
	}
	if requeued > 0 {
		a.logger.Info("dead outbox rows requeued", zap.Int("requeued", requeued))
	}
	writeOpsJSON(w, http.StatusOK, map[string]int{"requeued": requeued})
}

func writeOpsJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
