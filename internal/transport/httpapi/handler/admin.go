package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tallyops/settlebook/internal/auth"
	"github.com/tallyops/settlebook/internal/ledger"
	"github.com/tallyops/settlebook/internal/transport/httpapi/middleware"
	"github.com/tallyops/settlebook/pkg/logger"
)

// AdminHandler manages the installation-wide admin set. The policy
// enforces that only the owner can mutate it.
type AdminHandler struct {
	policy *auth.Policy
	log    *logger.Logger
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(policy *auth.Policy, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		policy: policy,
		log:    log.WithField("handler", "admin"),
	}
}

// ListAdmins handles GET /admins
func (h *AdminHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.policy.ListAdmins(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"admins": admins})
}

// GrantAdminRequest is the body of POST /admins.
type GrantAdminRequest struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// GrantAdmin handles POST /admins
func (h *AdminHandler) GrantAdmin(w http.ResponseWriter, r *http.Request) {
	op, ok := middleware.OperatorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing operator identity")
		return
	}

	var req GrantAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	admin := &ledger.Admin{
		UserID:      req.UserID,
		Username:    req.Username,
		DisplayName: req.DisplayName,
	}
	if err := h.policy.GrantAdmin(r.Context(), op.ID, admin); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, admin)
}

// RevokeAdmin handles DELETE /admins/{userID}
func (h *AdminHandler) RevokeAdmin(w http.ResponseWriter, r *http.Request) {
	op, ok := middleware.OperatorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing operator identity")
		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.policy.RevokeAdmin(r.Context(), op.ID, userID); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
