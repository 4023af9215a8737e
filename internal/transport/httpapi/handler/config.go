package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/tallyops/settlebook/internal/ledger"
	"github.com/tallyops/settlebook/pkg/logger"
)

// ConfigHandler serves the per-chat rate configuration.
type ConfigHandler struct {
	svc *ledger.Service
	log *logger.Logger
}

// NewConfigHandler creates a config handler.
func NewConfigHandler(svc *ledger.Service, log *logger.Logger) *ConfigHandler {
	return &ConfigHandler{
		svc: svc,
		log: log.WithField("handler", "config"),
	}
}

// GetConfig handles GET /chats/{chatID}/config
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	cfg, err := h.svc.GetConfig(r.Context(), chatID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cfg)
}

// UpdateConfigRequest carries a partial rate update; absent fields are
// left untouched.
type UpdateConfigRequest struct {
	DepositRate    *string `json:"deposit_rate,omitempty"`
	DepositFX      *string `json:"deposit_fx,omitempty"`
	WithdrawalRate *string `json:"withdrawal_rate,omitempty"`
	WithdrawalFX   *string `json:"withdrawal_fx,omitempty"`
	DisplayName    *string `json:"display_name,omitempty"`
}

// UpdateConfig handles PATCH /chats/{chatID}/config
func (h *ConfigHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch, err := req.toPatch()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg, err := h.svc.SetConfig(r.Context(), chatID, patch)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cfg)
}

// ResetDefaults handles POST /chats/{chatID}/config/defaults
func (h *ConfigHandler) ResetDefaults(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	cfg, err := h.svc.ResetDefaults(r.Context(), chatID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cfg)
}

func (r *UpdateConfigRequest) toPatch() (ledger.ConfigPatch, error) {
	var patch ledger.ConfigPatch

	set := func(raw *string, dst **decimal.Decimal, allowZero bool) error {
		if raw == nil {
			return nil
		}
		d, err := decimal.NewFromString(*raw)
		if err != nil {
			return errors.New("rates must be decimal numbers")
		}
		if d.Sign() < 0 || (!allowZero && d.Sign() == 0) {
			return errors.New("rates must be non-negative, fx must be positive")
		}
		*dst = &d
		return nil
	}

	if err := set(r.DepositRate, &patch.DepositRate, true); err != nil {
		return patch, err
	}
	if err := set(r.DepositFX, &patch.DepositFX, false); err != nil {
		return patch, err
	}
	if err := set(r.WithdrawalRate, &patch.WithdrawalRate, true); err != nil {
		return patch, err
	}
	if err := set(r.WithdrawalFX, &patch.WithdrawalFX, false); err != nil {
		return patch, err
	}
	patch.DisplayName = r.DisplayName

	return patch, nil
}
