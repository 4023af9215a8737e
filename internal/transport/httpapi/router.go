package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tallyops/settlebook/internal/transport/httpapi/handler"
	"github.com/tallyops/settlebook/internal/transport/httpapi/middleware"
	"github.com/tallyops/settlebook/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger           *logger.Logger
	AllowedOrigins   []string
	LedgerHandler    *handler.LedgerHandler
	ConfigHandler    *handler.ConfigHandler
	AdminHandler     *handler.AdminHandler
	AuthHandler      *handler.AuthHandler
	DashboardHandler *handler.DashboardHandler
	HealthHandler    *handler.HealthHandler
	OperatorAuth     func(http.Handler) http.Handler
	DashboardAuth    func(http.Handler) http.Handler
}

// NewRouter creates a new HTTP router. The API has two surfaces: the
// operator-authenticated command surface used by the chat transport,
// and the token-scoped read-only dashboard surface.
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	r.Use(middleware.RateLimit())

	// Health check endpoints (no authentication required)
	r.Get("/health", handler.GetHealth)
	r.Get("/health/live", handler.GetLiveness)
	if cfg.HealthHandler != nil {
		r.Get("/health/ready", cfg.HealthHandler.GetReadiness)
		r.Get("/health/detailed", cfg.HealthHandler.GetHealthDetailed)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Command surface, trusted chat transport only.
		if cfg.OperatorAuth != nil {
			r.Group(func(r chi.Router) {
				r.Use(cfg.OperatorAuth)

				if cfg.LedgerHandler != nil {
					r.Post("/chats/{chatID}/transactions", cfg.LedgerHandler.RecordTransaction)
					r.Get("/chats/{chatID}/transactions", cfg.LedgerHandler.ListTransactions)
					r.Get("/chats/{chatID}/summary", cfg.LedgerHandler.GetSummary)
					r.Post("/chats/{chatID}/reset", cfg.LedgerHandler.ResetPeriod)
					r.Put("/transactions/{id}/ref", cfg.LedgerHandler.AttachRef)
					r.Delete("/transactions/ref/{ref}", cfg.LedgerHandler.Undo)
				}

				if cfg.ConfigHandler != nil {
					r.Get("/chats/{chatID}/config", cfg.ConfigHandler.GetConfig)
					r.Patch("/chats/{chatID}/config", cfg.ConfigHandler.UpdateConfig)
					r.Post("/chats/{chatID}/config/defaults", cfg.ConfigHandler.ResetDefaults)
				}

				if cfg.AdminHandler != nil {
					r.Get("/admins", cfg.AdminHandler.ListAdmins)
					r.Post("/admins", cfg.AdminHandler.GrantAdmin)
					r.Delete("/admins/{userID}", cfg.AdminHandler.RevokeAdmin)
				}

				if cfg.AuthHandler != nil {
					r.Post("/auth/token", cfg.AuthHandler.IssueToken)
				}
			})
		}

		// Dashboard surface, token-scoped and read-only.
		if cfg.DashboardAuth != nil && cfg.DashboardHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(cfg.DashboardAuth)

				r.Get("/dashboard/summary", cfg.DashboardHandler.GetSummary)
				r.Get("/dashboard/records", cfg.DashboardHandler.GetRecords)
			})
		}
	})

	return r
}
