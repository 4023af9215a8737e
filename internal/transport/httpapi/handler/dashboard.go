package handler

import (
	"net/http"
	"time"

	"github.com/tallyops/settlebook/internal/ledger"
	"github.com/tallyops/settlebook/internal/transport/httpapi/middleware"
	"github.com/tallyops/settlebook/pkg/logger"
)

// DashboardHandler serves the token-scoped read-only statistics
// surface. The chat id always comes from the validated token, never
// from the request, so a leaked link cannot browse other groups.
type DashboardHandler struct {
	svc   *ledger.Service
	cache SummaryCache
	loc   *time.Location
	log   *logger.Logger
}

// NewDashboardHandler creates a dashboard handler. cache may be nil.
func NewDashboardHandler(svc *ledger.Service, cache SummaryCache, loc *time.Location, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		svc:   svc,
		cache: cache,
		loc:   loc,
		log:   log.WithField("handler", "dashboard"),
	}
}

// GetSummary handles GET /dashboard/summary
func (h *DashboardHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	chatID, ok := middleware.ChatIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing chat scope")
		return
	}

	start := periodStart(time.Now(), h.loc)

	if h.cache != nil {
		if cached, hit, err := h.cache.Get(r.Context(), chatID, start); err == nil && hit {
			respondJSON(w, http.StatusOK, toSummaryView(cached, h.loc))
			return
		}
	}

	summary, err := h.svc.Summary(r.Context(), chatID, start)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(r.Context(), summary, start); err != nil {
			h.log.Warn("summary cache write failed", "chat_id", chatID, "error", err)
		}
	}

	respondJSON(w, http.StatusOK, toSummaryView(summary, h.loc))
}

// GetRecords handles GET /dashboard/records
func (h *DashboardHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	chatID, ok := middleware.ChatIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing chat scope")
		return
	}

	start := periodStart(time.Now(), h.loc)
	txs, err := h.svc.ListTransactions(r.Context(), chatID, &start)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"chat_id": chatID,
		"records": toRecordViews(txs, h.loc),
	})
}
