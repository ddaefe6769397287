package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/amirk1998/car-rental-client/internal/api"
	"github.com/amirk1998/car-rental-client/internal/audit"
	"github.com/amirk1998/car-rental-client/internal/config"
	"github.com/amirk1998/car-rental-client/internal/contracts"
	"github.com/amirk1998/car-rental-client/internal/database"
	"github.com/amirk1998/car-rental-client/internal/ratelimit"
	"github.com/amirk1998/car-rental-client/internal/repository"
	"github.com/amirk1998/car-rental-client/internal/security"
	"github.com/amirk1998/car-rental-client/internal/service"
	"github.com/amirk1998/car-rental-client/internal/session"
	"github.com/amirk1998/car-rental-client/internal/storage"
)

// Application holds every component of the client. In ephemeral mode there
// is no database, so db, ledger, archive and auditMonitor stay nil.
type Application struct {
	config       *config.Config
	log          *zap.Logger
	ui           *terminal
	db           *sql.DB
	session      *session.Manager
	client       *api.Client
	authService  *service.AuthService
	catalog      *service.CatalogService
	booking      *service.BookingService
	contracts    *service.ContractService
	reconciler   *service.Reconciler
	ledger       *repository.BookingAttemptRepository
	archive      *contracts.Archive
	auditLogger  *audit.Logger
	auditMonitor *audit.Monitor
	rateLimiter  *ratelimit.RateLimiter
}

// initializeApplication sets up all application components
func initializeApplication(cfg *config.Config, ui *terminal, log *zap.Logger, ephemeral bool) (*Application, error) {
	app := &Application{
		config:      cfg,
		log:         log,
		ui:          ui,
		rateLimiter: ratelimit.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
	app.rateLimiter.SetPolicy(ratelimit.OpRegister, ratelimit.Policy{Overall: ratelimit.PerMinute(3)})

	var (
		store     storage.Store
		encryptor *security.FieldEncryptor
	)
	if ephemeral {
		store = storage.NewMemoryStore()
	} else {
		keyManager, err := security.NewKeyManager(cfg.StoreEncryptionKey, cfg.AppEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize key manager: %w", err)
		}

		db, err := database.Connect(database.Config{
			Path:          cfg.StorePath,
			EncryptionKey: keyManager.StoreKey(),
			MaxOpenConns:  4,
			MaxIdleConns:  2,
			MaxLifetime:   1 * time.Hour,
			MaxIdleTime:   10 * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		app.db = db

		if err := database.Migrate(db); err != nil {
			app.cleanup()
			return nil, fmt.Errorf("migration failed: %w", err)
		}

		encryptor, err = security.NewFieldEncryptor(keyManager.AppKey())
		if err != nil {
			app.cleanup()
			return nil, fmt.Errorf("failed to initialize field encryptor: %w", err)
		}

		store = storage.NewSQLStore(db, encryptor)
		app.ledger = repository.NewBookingAttemptRepository(db)
	}

	// The audit logger accepts a nil db and then only writes its file.
	auditLogger, err := audit.NewLogger(app.db, cfg.AuditLogPath, cfg.AuditAsyncMode, log)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	app.auditLogger = auditLogger
	if app.db != nil {
		app.auditMonitor = audit.NewMonitor(auditLogger, log)
	}

	app.session = session.NewManager(store, ui, ui, log, session.WithRecorder(auditLogger))
	app.client = api.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, app.session, log)

	app.authService = service.NewAuthService(app.client, app.session, app.rateLimiter, auditLogger, log)
	app.catalog = service.NewCatalogService(app.client, log)

	// A nil *repository.BookingAttemptRepository must not reach the Ledger
	// interface as a non-nil value.
	var ledger service.Ledger
	if app.ledger != nil {
		ledger = app.ledger
	}
	app.booking = service.NewBookingService(app.client, ledger, app.rateLimiter, auditLogger, log, cfg.PaymentCardType)
	app.reconciler = service.NewReconciler(app.client, ledger, auditLogger, func() bool {
		return app.session.Snapshot().Authenticated()
	}, log)

	if encryptor != nil {
		archive, err := contracts.NewArchive(cfg.ContractsDir, encryptor, cfg.ContractsRetentionDays, log)
		if err != nil {
			app.cleanup()
			return nil, fmt.Errorf("failed to initialize contract archive: %w", err)
		}
		app.archive = archive
	}
	app.contracts = service.NewContractService(app.client, app.archive, log)

	return app, nil
}

// startBackground runs the periodic workers of a long-lived shell session.
func (app *Application) startBackground(ctx context.Context) {
	go app.rateLimiter.StartCleanupWorker(ctx, 1*time.Hour)
	go app.reconciler.Run(ctx, app.config.ReconcileInterval)

	if app.auditMonitor != nil {
		go app.auditMonitor.Run(ctx, 5*time.Minute)
	}
	if app.archive != nil {
		go app.archive.RunCleanup(ctx, 24*time.Hour)
	}
}

// cleanup performs cleanup operations
func (app *Application) cleanup() {
	if app.session != nil {
		app.session.Close()
	}

	if app.auditLogger != nil {
		app.auditLogger.Close()
	}

	if app.db != nil {
		app.db.Close()
	}
}
