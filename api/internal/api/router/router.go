package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/irgordon/vela/api/internal/api/handlers"
	vela_middleware "github.com/irgordon/vela/api/internal/api/middleware"
)

// RouterConfig defines the strict dependencies required to build the API routing tree.
type RouterConfig struct {
	AllowedOrigins     []string
	AuthHandler        *handlers.AuthHandler
	BackendHandler     *handlers.BackendHandler
	RuleHandler        *handlers.RuleHandler
	CertificateHandler *handlers.CertificateHandler
	SettingsHandler    *handlers.SettingsHandler
	ProxyHandler       *handlers.ProxyHandler
	AuditHandler       *handlers.AuditHandler
	EventsHandler      *handlers.EventsHandler
	UserHandler        *handlers.UserHandler
	AuthMiddleware     *vela_middleware.AuthMiddleware
	Logger             *slog.Logger
}

// NewRouter constructs the Chi multiplexer, attaches global middleware, and wires all endpoints.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// =========================================================================
	// 1. Global Gateway Middleware Pipeline
	// =========================================================================

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(vela_middleware.StructuredLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// 🛡️ Limit all incoming JSON requests to 1 Megabyte max (OOM Protection)
	r.Use(vela_middleware.MaxBytes(1_048_576))

	// 🛡️ In-memory token bucket rate limiting
	r.Use(cfg.AuthMiddleware.RateLimit)

	// Strict CORS Configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Set-Cookie"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// =========================================================================
	// 2. API v1 Routing Tree
	// =========================================================================

	r.Route("/api/v1", func(r chi.Router) {

		// ---------------------------------------------------------------------
		// Public Routes (No Auth Required)
		// ---------------------------------------------------------------------
		r.Group(func(r chi.Router) {
			r.Post("/auth/login", cfg.AuthHandler.Login)
			r.Post("/auth/refresh", cfg.AuthHandler.Refresh)
		})

		// ---------------------------------------------------------------------
		// Protected Routes (Requires a Valid JWT)
		// ---------------------------------------------------------------------
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthMiddleware.RequireAuthentication)

			// 🛡️ Viewers can read everything but mutate nothing; this guard
			// covers every POST/PUT/PATCH/DELETE in the subtree.
			r.Use(cfg.AuthMiddleware.RequireMutator)

			// --- Upstream Backends ---
			r.Route("/backends", func(r chi.Router) {
				r.Get("/", cfg.BackendHandler.List)
				r.Post("/", cfg.BackendHandler.Create)
				r.Get("/{id}", cfg.BackendHandler.GetByID)
				r.Put("/{id}", cfg.BackendHandler.Update)
				r.Delete("/{id}", cfg.BackendHandler.Delete)
			})

			// --- Proxy Rules ---
			r.Route("/rules", func(r chi.Router) {
				r.Get("/", cfg.RuleHandler.List)
				r.Post("/", cfg.RuleHandler.Create)
				r.Get("/{id}", cfg.RuleHandler.GetByID)
				r.Put("/{id}", cfg.RuleHandler.Update)
				r.Delete("/{id}", cfg.RuleHandler.Delete)
			})

			// --- TLS Certificates ---
			r.Route("/certificates", func(r chi.Router) {
				r.Get("/", cfg.CertificateHandler.List)
				r.Post("/", cfg.CertificateHandler.Upload)
				r.Post("/provision", cfg.CertificateHandler.Provision)
				r.Post("/{id}/default", cfg.CertificateHandler.SetDefault)
				r.Delete("/{id}", cfg.CertificateHandler.Delete)
			})

			// --- Global Proxy Settings (admin only) ---
			r.Route("/settings", func(r chi.Router) {
				r.Use(cfg.AuthMiddleware.RequireAdmin)
				r.Get("/", cfg.SettingsHandler.List)
				r.Put("/{key}", cfg.SettingsHandler.Set)
				r.Delete("/{key}", cfg.SettingsHandler.Delete)
			})

			// --- Reload Pipeline ---
			r.Route("/proxy", func(r chi.Router) {
				r.Post("/reload", cfg.ProxyHandler.Reload)
				r.Get("/preview", cfg.ProxyHandler.Preview)
				r.Get("/status", cfg.ProxyHandler.Status)
			})

			// --- Audit Trail (admin only) ---
			r.With(cfg.AuthMiddleware.RequireAdmin).Get("/audit", cfg.AuditHandler.List)

			// --- WebSocket Event Stream ---
			r.Get("/ws/events", cfg.EventsHandler.Stream)
		})

		// ---------------------------------------------------------------------
		// Account Routes (outside the mutator gate: viewers may rotate
		// their own password, nothing else)
		// ---------------------------------------------------------------------
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthMiddleware.RequireAuthentication)

			r.Put("/users/me/password", cfg.UserHandler.ChangeOwnPassword)

			// --- User Management (admin only) ---
			r.Group(func(r chi.Router) {
				r.Use(cfg.AuthMiddleware.RequireAdmin)
				r.Get("/users", cfg.UserHandler.List)
				r.Post("/users", cfg.UserHandler.Create)
				r.Put("/users/{id}", cfg.UserHandler.Update)
				r.Put("/users/{id}/password", cfg.UserHandler.ResetPassword)
			})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
