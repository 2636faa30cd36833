package routes

import (
	"net/http"

	"github.com/avdeyev/socialguard/internal/config"
	"github.com/avdeyev/socialguard/internal/database"
	"github.com/avdeyev/socialguard/internal/handlers"
	"github.com/avdeyev/socialguard/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Deps bundles what the route table needs.
type Deps struct {
	Config         *config.Config
	DB             *database.DB
	GameHandler    *handlers.GameHandler
	AdminHandler   *handlers.AdminHandler
	ChannelInbound http.HandlerFunc
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Deps) {
	rateLimitConfig := middleware.DefaultAPIRateLimit()
	jwtSecret := deps.Config.Auth.JWTSecret

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.DB.HealthCheck(r.Context()); err != nil {
			handlers.WriteError(w, http.StatusServiceUnavailable, "unhealthy", "database unreachable")
			return
		}
		handlers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Channel bot events authenticate with per-channel secrets, not JWT.
	router.With(middleware.RateLimitByIP(rateLimitConfig)).
		Post("/v1/channels/{kind}/events", deps.ChannelInbound)

	// Game plugin routes. Login is the long-poll gate; the plugin holds the
	// request open while a confirmation session is pending.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireScope(jwtSecret, middleware.ScopeGame))
		r.Post("/v1/game/login", deps.GameHandler.Login)
		r.Post("/v1/game/confirm", deps.GameHandler.Confirm)
		r.Post("/v1/game/joined", deps.GameHandler.Joined)
		r.Post("/v1/game/left", deps.GameHandler.Left)
	})

	// Operator routes
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireScope(jwtSecret, middleware.ScopeAdmin))
		r.Delete("/v1/admin/links/{nickname}", deps.AdminHandler.ForceUnlink)
	})
}
