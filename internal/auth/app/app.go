package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/edgecoder/edgeauth/internal/auth/service"
	"github.com/edgecoder/edgeauth/internal/auth/store"
	"github.com/edgecoder/edgeauth/internal/auth/store/drivers/sqlite"
	"github.com/edgecoder/edgeauth/internal/geoip"
	"github.com/edgecoder/edgeauth/pkg/cryptox"
	"github.com/edgecoder/edgeauth/pkg/slogx"

	httpapi "github.com/edgecoder/edgeauth/internal/auth/http"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	// Services
	sessionService      *service.SessionService
	userService         *service.UserService
	emailVerifyService  *service.EmailVerificationService
	oauthService        *service.OAuthService
	passkeyService      *service.PasskeyService
	nodeService         *service.NodeService
	walletService       *service.WalletService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "edgeauth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("edgeauth starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down edgeauth...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	// Close database connection
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("edgeauth stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	mailer := &service.LogMailer{Logger: app.logger}

	app.sessionService = &service.SessionService{
		Store: app.db,
		TTL:   app.cfg.SessionTTL,
	}

	app.emailVerifyService = &service.EmailVerificationService{
		Store:   app.db,
		Mailer:  mailer,
		BaseURL: app.cfg.BaseURL,
		TTL:     app.cfg.EmailTokenTTL,
	}

	app.userService = &service.UserService{
		Store:       app.db,
		EmailVerify: app.emailVerifyService,
	}

	app.oauthService = service.NewOAuthService(
		app.db,
		app.sessionService,
		app.cfg.Providers,
		app.cfg.BaseURL,
		app.cfg.NativeRedirectScheme,
	)

	wa, err := webauthn.New(&webauthn.Config{
		RPID:          app.cfg.RPID,
		RPDisplayName: app.cfg.RPDisplayName,
		RPOrigins:     app.cfg.RPOrigins,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize webauthn: %w", err)
	}
	app.passkeyService = &service.PasskeyService{
		Store:        app.db,
		WebAuthn:     wa,
		ChallengeTTL: app.cfg.PasskeyChallengeTTL,
	}

	var resolver geoip.Resolver = geoip.NoopResolver{}
	if app.cfg.GeoIPURL != "" {
		resolver = geoip.NewHTTPResolver(app.cfg.GeoIPURL)
	}
	app.nodeService = &service.NodeService{
		Store: app.db,
		GeoIP: resolver,
	}

	app.walletService = &service.WalletService{
		Store:        app.db,
		Passkeys:     app.passkeyService,
		Mailer:       mailer,
		ChallengeTTL: app.cfg.WalletChallengeTTL,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.CookieSecure = app.cfg.CookieSecure
	router.InternalToken = app.cfg.InternalToken

	// Wire services to router
	router.SessionService = app.sessionService
	router.UserService = app.userService
	router.EmailVerifyService = app.emailVerifyService
	router.OAuthService = app.oauthService
	router.PasskeyService = app.passkeyService
	router.NodeService = app.nodeService
	router.WalletService = app.walletService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
