package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/tallyops/settlebook/internal/auth"
	"github.com/tallyops/settlebook/internal/ledger"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// ChatIDKey is the context key for the token's chat scope
	ChatIDKey ContextKey = "chat_id"
	// OperatorKey is the context key for the verified operator
	OperatorKey ContextKey = "operator"
)

// Headers carrying the operator identity on the internal write surface.
const (
	OperatorIDHeader   = "X-Operator-Id"
	OperatorNameHeader = "X-Operator-Name"
)

// DashboardAuth validates the bearer token of dashboard requests and
// stores the token's chat scope in the context. A dashboard token only
// grants read access to the one chat it was issued for.
func DashboardAuth(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.Validate(parts[1])
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ChatIDKey, claims.ChatID)
			ctx = context.WithValue(ctx, OperatorKey, ledger.Operator{ID: claims.UserID})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorAuth guards the internal command surface. The chat transport
// process is trusted to identify the operator via headers; this layer
// only enforces that the operator is in the admin set.
func OperatorAuth(policy *auth.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.ParseInt(r.Header.Get(OperatorIDHeader), 10, 64)
			if err != nil || id == 0 {
				http.Error(w, "missing operator identity", http.StatusUnauthorized)
				return
			}

			ok, err := policy.Authorize(r.Context(), id)
			if err != nil {
				http.Error(w, "authorization check failed", http.StatusInternalServerError)
				return
			}
			if !ok {
				http.Error(w, "operator is not authorized", http.StatusForbidden)
				return
			}

			op := ledger.Operator{ID: id, Name: r.Header.Get(OperatorNameHeader)}
			ctx := context.WithValue(r.Context(), OperatorKey, op)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ChatIDFromContext extracts the token's chat scope.
func ChatIDFromContext(ctx context.Context) (int64, bool) {
	chatID, ok := ctx.Value(ChatIDKey).(int64)
	return chatID, ok
}

// OperatorFromContext extracts the verified operator.
func OperatorFromContext(ctx context.Context) (ledger.Operator, bool) {
	op, ok := ctx.Value(OperatorKey).(ledger.Operator)
	return op, ok
}
