package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/irgordon/vela/api/internal/api/handlers"
	"github.com/irgordon/vela/api/internal/api/middleware"
	"github.com/irgordon/vela/api/internal/api/router"
	"github.com/irgordon/vela/api/internal/config"
	"github.com/irgordon/vela/api/internal/core/services"
	"github.com/irgordon/vela/api/internal/db/postgres"
	"github.com/irgordon/vela/api/internal/engine"
	"github.com/irgordon/vela/api/internal/telemetry"
	"github.com/irgordon/vela/api/internal/workers"
)

func main() {
	// --- 1. Core Telemetry & Configuration ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("🚀 Booting Vela control plane...")

	godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()

	// --- 2. Outbound Infrastructure ---
	dbPool, err := postgres.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("FATAL: DB failed", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	sqlxDB, err := postgres.NewSQLXDB(cfg.DatabaseURL)
	if err != nil {
		logger.Error("FATAL: sqlx connection failed", "error", err)
		os.Exit(1)
	}
	defer sqlxDB.Close()

	// --- 3. Hardened Dependency Injection ---

	// Repositories
	backendRepo := postgres.NewBackendRepository(dbPool)
	ruleRepo := postgres.NewRuleRepository(dbPool)
	certRepo := postgres.NewCertificateRepository(dbPool)
	settingsRepo := postgres.NewSettingsRepository(sqlxDB)
	auditRepo := postgres.NewAuditRepository(dbPool)
	userRepo := postgres.NewUserRepository(dbPool)

	// 🛡️ Global Telemetry Hub (Memory Bus)
	telemetryHub := telemetry.NewHub()

	// Services
	auditService := services.NewAuditService(auditRepo, telemetryHub, logger)
	tokenService := services.NewTokenService(cfg.JWTSecret)
	authService := services.NewAuthService(userRepo, tokenService)
	certService := services.NewCertificateService(certRepo, cfg.CertsDir, logger)
	acmeService := services.NewAcmeService(certService, cfg.AcmeEmail, cfg.AcmeCADirURL, cfg.AcmeWebroot, logger)
	userService := services.NewUserService(userRepo, logger)

	// Seed the first admin on an empty users table so a fresh deployment
	// can log in. Non-fatal: the API still serves reads without it.
	if err := userService.Bootstrap(context.Background(), cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
		logger.Error("bootstrap admin failed", "error", err)
	}

	// Reload Engine
	renderer, err := engine.NewRenderer()
	if err != nil {
		logger.Error("FATAL: template parse failed", "error", err)
		os.Exit(1)
	}
	validator := engine.NewNginxValidator(cfg.NginxBinary, 15*time.Second)
	signaler := engine.NewNginxSignaler(cfg.NginxBinary, 10*time.Second)
	prober := engine.NewHTTPProber(fmt.Sprintf("http://127.0.0.1:%s/healthz", cfg.StatusPort), 10*time.Second)
	controller := engine.NewController(
		renderer, validator, signaler, prober,
		auditService,
		cfg.LiveConfigPath, cfg.BackupPath,
		logger,
	)
	proxyService := services.NewProxyService(
		backendRepo, ruleRepo, certRepo, settingsRepo,
		controller, prober, cfg.LiveConfigPath, logger,
	)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	backendHandler := handlers.NewBackendHandler(backendRepo, auditService)
	ruleHandler := handlers.NewRuleHandler(ruleRepo, backendRepo, auditService)
	certHandler := handlers.NewCertificateHandler(certService, acmeService, auditService)
	settingsHandler := handlers.NewSettingsHandler(settingsRepo, auditService)
	proxyHandler := handlers.NewProxyHandler(proxyService)
	auditHandler := handlers.NewAuditHandler(auditService)
	eventsHandler := handlers.NewEventsHandler(telemetryHub, logger)
	userHandler := handlers.NewUserHandler(userService, auditService)

	authMiddleware := middleware.NewAuthMiddleware(authService, logger)

	// --- 4. Background Workers ---
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	certMonitor := workers.NewCertMonitor(certRepo, auditRepo, logger, 12*time.Hour)
	go certMonitor.Start(workerCtx)

	backendMonitor := workers.NewBackendMonitor(backendRepo, auditRepo, logger, 1*time.Minute)
	go backendMonitor.Start(workerCtx)

	// --- 5. HTTP Gateway ---
	mux := router.NewRouter(router.RouterConfig{
		AllowedOrigins:     cfg.AllowedOrigins,
		AuthHandler:        authHandler,
		BackendHandler:     backendHandler,
		RuleHandler:        ruleHandler,
		CertificateHandler: certHandler,
		SettingsHandler:    settingsHandler,
		ProxyHandler:       proxyHandler,
		AuditHandler:       auditHandler,
		EventsHandler:      eventsHandler,
		UserHandler:        userHandler,
		AuthMiddleware:     authMiddleware,
		Logger:             logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // reloads and ACME flows run synchronously
	}

	// --- 6. Graceful Exit ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("🌐 Vela API active", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("CRITICAL: Server crashed", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	logger.Info("🛑 Shutting down...")
	cancelWorkers() // stop monitors before the pool closes

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ERROR: Forced shutdown", "error", err)
	}
	logger.Info("✅ Vela control plane stopped. The proxy keeps serving the last committed config.")
}
