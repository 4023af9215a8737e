package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tallyops/settlebook/internal/auth"
	"github.com/tallyops/settlebook/pkg/logger"
)

// AuthHandler issues the signed tokens embedded in dashboard links.
// The endpoint sits on the operator-authenticated surface: the chat
// transport requests a link on behalf of a user it has already seen.
type AuthHandler struct {
	tokens *auth.TokenService
	log    *logger.Logger
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(tokens *auth.TokenService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		tokens: tokens,
		log:    log.WithField("handler", "auth"),
	}
}

// IssueTokenRequest is the body of POST /auth/token.
type IssueTokenRequest struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

// IssueTokenResponse carries the signed token and its expiry.
type IssueTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken handles POST /auth/token
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req IssueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChatID == 0 || req.UserID == 0 {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.tokens.Generate(req.ChatID, req.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	h.log.Info("dashboard token issued", "chat_id", req.ChatID, "user_id", req.UserID)
	respondJSON(w, http.StatusCreated, IssueTokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(auth.TokenTTL),
	})
}
