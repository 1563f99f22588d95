package routing

import (
	"net/http"

	"groupwarden/internal/handlers"
	"groupwarden/internal/middleware"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Config holds the configuration needed for setting up routes
type Config struct {
	Handlers *handlers.Handler
	Logger   zerolog.Logger
}

// SetupRouter creates and configures the HTTP router with all routes and middleware
func SetupRouter(cfg Config) http.Handler {
	h := cfg.Handlers
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.HandleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Audit trail access
	mux.HandleFunc("GET /api/audit", h.HandleAuditList)
	mux.HandleFunc("GET /api/audit/export", h.HandleAuditExport)

	// Policy evaluation and rule exemptions
	mux.HandleFunc("POST /api/groups/{groupID}/scan", h.HandleScan)
	mux.HandleFunc("POST /api/groups/{groupID}/rules/{ruleID}/whitelist", h.HandleWhitelistAdd)

	// Enforcement loop state
	mux.HandleFunc("GET /api/guard/status", h.HandleGuardStatus)

	// Live event stream
	mux.HandleFunc("GET /ws", h.HandleWebSocket)

	// Apply logging middleware (outermost - wraps everything)
	var handler http.Handler = mux
	handler = middleware.LoggingMiddleware(cfg.Logger)(handler)

	return handler
}
