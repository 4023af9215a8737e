package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tallyops/settlebook/internal/ledger"
	"github.com/tallyops/settlebook/internal/shared/apperr"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// respondError sends a plain error response
func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, ErrorResponse{Error: message})
}

// respondDomainError maps engine errors onto HTTP statuses. Busy maps
// to 409 with a retryable code so the chat transport can re-issue the
// command.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotConfigured):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "exchange rate is not configured for this chat",
			Code:  apperr.CodeNotConfigured,
		})
	case errors.Is(err, ledger.ErrNotFound):
		respondJSON(w, http.StatusNotFound, ErrorResponse{
			Error: "no matching record",
			Code:  apperr.CodeNotFound,
		})
	case errors.Is(err, ledger.ErrRefConflict):
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error: "record already carries a different reference",
			Code:  apperr.CodeConflict,
		})
	case errors.Is(err, ledger.ErrBusy):
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error: "chat is busy, retry the command",
			Code:  apperr.CodeBusy,
		})
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidKind):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  apperr.CodeInvalidInput,
		})
	default:
		if appErr := apperr.GetAppError(err); appErr != nil {
			respondJSON(w, statusForCode(appErr.Code), ErrorResponse{
				Error: appErr.Message,
				Code:  appErr.Code,
			})
			return
		}
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func statusForCode(code string) int {
	switch code {
	case apperr.CodeInvalidInput:
		return http.StatusBadRequest
	case apperr.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict, apperr.CodeBusy:
		return http.StatusConflict
	case apperr.CodeNotConfigured:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
