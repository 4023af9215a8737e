package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tallyops/settlebook/internal/ledger"
	"github.com/tallyops/settlebook/internal/transport/httpapi/middleware"
	"github.com/tallyops/settlebook/pkg/logger"
)

// SummaryCache is the optional read-through cache consulted by the
// summary endpoint and invalidated on every write.
type SummaryCache interface {
	Get(ctx context.Context, chatID int64, periodStart time.Time) (*ledger.Summary, bool, error)
	Set(ctx context.Context, summary *ledger.Summary, periodStart time.Time) error
	Invalidate(ctx context.Context, chatID int64) error
}

// LedgerHandler serves the command surface: recording, undo, summary
// and period reset.
type LedgerHandler struct {
	svc   *ledger.Service
	cache SummaryCache
	loc   *time.Location
	log   *logger.Logger
}

// NewLedgerHandler creates a ledger handler. cache may be nil.
func NewLedgerHandler(svc *ledger.Service, cache SummaryCache, loc *time.Location, log *logger.Logger) *LedgerHandler {
	return &LedgerHandler{
		svc:   svc,
		cache: cache,
		loc:   loc,
		log:   log.WithField("handler", "ledger"),
	}
}

// RecordTransactionRequest is the body of POST /chats/{chatID}/transactions.
type RecordTransactionRequest struct {
	Kind   string `json:"kind"`
	Amount string `json:"amount"`
	Tag    string `json:"tag,omitempty"`
}

// RecordTransaction handles POST /chats/{chatID}/transactions
func (h *LedgerHandler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	op, ok := middleware.OperatorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing operator identity")
		return
	}

	var req RecordTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	var tx *ledger.Transaction
	switch ledger.Kind(req.Kind) {
	case ledger.KindDeposit:
		tx, err = h.svc.RecordDeposit(r.Context(), chatID, amount, req.Tag, op)
	case ledger.KindWithdrawal:
		tx, err = h.svc.RecordWithdrawal(r.Context(), chatID, amount, req.Tag, op)
	case ledger.KindDisbursement:
		tx, err = h.svc.RecordDisbursement(r.Context(), chatID, amount, op)
	default:
		respondError(w, http.StatusBadRequest, "unknown transaction kind")
		return
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.invalidate(r.Context(), chatID)
	respondJSON(w, http.StatusCreated, toRecordView(tx, h.loc))
}

// AttachRefRequest is the body of PUT /transactions/{id}/ref.
type AttachRefRequest struct {
	Ref string `json:"ref"`
}

// AttachRef handles PUT /transactions/{id}/ref
func (h *LedgerHandler) AttachRef(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var req AttachRefRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Ref == "" {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.AttachReference(r.Context(), id, req.Ref); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "attached"})
}

// Undo handles DELETE /transactions/ref/{ref}
func (h *LedgerHandler) Undo(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if ref == "" {
		respondError(w, http.StatusBadRequest, "missing reference")
		return
	}

	removed, err := h.svc.Undo(r.Context(), ref)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.invalidate(r.Context(), removed.ChatID)
	respondJSON(w, http.StatusOK, toRecordView(removed, h.loc))
}

// ListTransactions handles GET /chats/{chatID}/transactions
func (h *LedgerHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		since = &t
	}

	txs, err := h.svc.ListTransactions(r.Context(), chatID, since)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"chat_id":      chatID,
		"transactions": toRecordViews(txs, h.loc),
	})
}

// GetSummary handles GET /chats/{chatID}/summary
func (h *LedgerHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	full := r.URL.Query().Get("full") == "1"

	summary, err := h.loadSummary(r.Context(), chatID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if !full {
		summary = summary.Clip(ledger.TopN)
	}
	respondJSON(w, http.StatusOK, toSummaryView(summary, h.loc))
}

// ResetPeriod handles POST /chats/{chatID}/reset
func (h *LedgerHandler) ResetPeriod(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	stats, err := h.svc.ResetPeriod(r.Context(), chatID, periodStart(time.Now(), h.loc))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.invalidate(r.Context(), chatID)
	respondJSON(w, http.StatusOK, stats)
}

// loadSummary serves the summary through the cache when one is wired.
func (h *LedgerHandler) loadSummary(ctx context.Context, chatID int64) (*ledger.Summary, error) {
	start := periodStart(time.Now(), h.loc)

	if h.cache != nil {
		if cached, hit, err := h.cache.Get(ctx, chatID, start); err == nil && hit {
			return cached, nil
		}
	}

	summary, err := h.svc.Summary(ctx, chatID, start)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, summary, start); err != nil {
			h.log.Warn("summary cache write failed", "chat_id", chatID, "error", err)
		}
	}
	return summary, nil
}

func (h *LedgerHandler) invalidate(ctx context.Context, chatID int64) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, chatID); err != nil {
		h.log.Warn("summary cache invalidation failed", "chat_id", chatID, "error", err)
	}
}

func chatIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid chat id")
		return 0, false
	}
	return chatID, true
}
