package container

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/field-service/internal/application/dispatcher"
	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/application/service"
	"github.com/garyjia/field-service/internal/application/workflow"
	"github.com/garyjia/field-service/internal/domain/event"
	"github.com/garyjia/field-service/internal/infrastructure/external/fiscal"
	infraLark "github.com/garyjia/field-service/internal/infrastructure/external/lark"
	"github.com/garyjia/field-service/internal/infrastructure/external/whatsapp"
	"github.com/garyjia/field-service/internal/infrastructure/metrics"
	"github.com/garyjia/field-service/internal/infrastructure/persistence/repository"
	"github.com/garyjia/field-service/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/field-service/internal/infrastructure/report"
	"github.com/garyjia/field-service/internal/infrastructure/storage"
	"github.com/garyjia/field-service/internal/infrastructure/worker"
	"github.com/garyjia/field-service/migrations"
	"github.com/garyjia/field-service/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	SqlDB          *sql.DB
	TransactionMgr *sqlite.TxManager
}

// StorageBundle holds storage-related components.
type StorageBundle struct {
	FileStorage port.FileStorage
	Uploader    port.FileUploader
	// LocalDir is set when files are served from the local filesystem
	LocalDir string
}

// ProvideDatabase opens the database and applies the embedded migrations.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.Open(ctx, database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if _, err := database.NewMigrator(db, logger).Up(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewTxManager(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		ServiceOrder:   repository.NewServiceOrderRepository(sqlDB, logger),
		Completion:     repository.NewCompletionRepository(sqlDB, logger),
		FiscalDocument: repository.NewFiscalDocumentRepository(sqlDB, logger),
	}, nil
}

// ProvideStorage creates the configured file store and the evidence uploader.
func ProvideStorage(ctx context.Context, cfg *StorageConfig, logger *zap.Logger) (*StorageBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	bundle := &StorageBundle{}
	switch cfg.Driver {
	case "s3":
		s3Storage, err := storage.NewS3FileStorage(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Prefix:    cfg.S3Prefix,
			Endpoint:  cfg.S3Endpoint,
			PublicURL: cfg.S3PublicURL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 storage: %w", err)
		}
		bundle.FileStorage = s3Storage
	default:
		local := storage.NewLocalFileStorage(cfg.LocalDir, cfg.LocalPublicURL, logger)
		bundle.FileStorage = local
		bundle.LocalDir = local.BaseDir()
	}

	bundle.Uploader = storage.NewUploader(bundle.FileStorage, cfg.MaxFileSize, logger)
	return bundle, nil
}

// ProvideNotifiers creates every configured notification channel.
func ProvideNotifiers(waCfg *WhatsAppConfig, larkCfg *LarkConfig, logger *zap.Logger) []port.Notifier {
	var notifiers []port.Notifier

	if waCfg != nil && waCfg.PhoneNumberID != "" {
		notifiers = append(notifiers, whatsapp.NewNotifier(whatsapp.Config{
			BaseURL:        waCfg.BaseURL,
			PhoneNumberID:  waCfg.PhoneNumberID,
			AccessToken:    waCfg.AccessToken,
			DefaultCountry: waCfg.DefaultCountry,
			RatePerSecond:  waCfg.RatePerSecond,
			Timeout:        waCfg.Timeout,
		}, logger))
	} else {
		logger.Info("WhatsApp notifications disabled")
	}

	if larkCfg != nil && larkCfg.AppID != "" {
		client := infraLark.NewSDKClient(infraLark.Config{
			AppID:     larkCfg.AppID,
			AppSecret: larkCfg.AppSecret,
			ChatID:    larkCfg.ChatID,
			BaseURL:   larkCfg.BaseURL,
		}, logger)
		notifiers = append(notifiers, infraLark.NewTeamNotifier(client, larkCfg.ChatID, logger))
	} else {
		logger.Info("Lark notifications disabled")
	}

	return notifiers
}

// ProvideFiscalEmitter creates the fiscal gateway client.
func ProvideFiscalEmitter(cfg *FiscalConfig, logger *zap.Logger) (port.FiscalEmitter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("fiscal config is required")
	}
	return fiscal.NewClient(fiscal.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	}, logger), nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&dispatcherLoggerAdapter{logger: logger}),
		dispatcher.WithAsyncTimeout(2*time.Minute),
		dispatcher.WithMaxInFlight(4),
	), nil
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Storage    port.FileStorage
	Notifiers  []port.Notifier
	Report     *ReportConfig
	Notify     *NotificationConfig
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	svcLogger := &zapLoggerAdapter{logger: deps.Logger}
	renderer := report.NewExcelRenderer(deps.Report.CompanyName, deps.Logger)

	return &ServiceBundle{
		Completion: service.NewCompletionService(
			deps.Repos.ServiceOrder,
			deps.Repos.Completion,
			deps.Repos.FiscalDocument,
			deps.TxManager,
			deps.Dispatcher,
			svcLogger,
		),
		Notification: service.NewNotificationService(
			deps.Repos.ServiceOrder,
			deps.Notifiers,
			deps.Notify.Timeout,
			svcLogger,
		),
		Report: service.NewReportService(
			deps.Repos.ServiceOrder,
			deps.Repos.Completion,
			deps.Repos.FiscalDocument,
			renderer,
			deps.Storage,
			svcLogger,
		),
	}, nil
}

// RegisterEventHandlers subscribes services to domain events.
func RegisterEventHandlers(d dispatcher.Dispatcher, services *ServiceBundle) {
	// sqlite returns SQLITE_BUSY while a finalize transaction holds the write lock
	d.Subscribe(event.TypeOrderCompleted, "report.generate", services.Report.HandleOrderCompleted,
		dispatcher.WithRetry(3, 500*time.Millisecond))
}

// WorkflowDeps holds dependencies for creating the session manager.
type WorkflowDeps struct {
	Orders     port.ServiceOrderRepository
	Uploader   port.FileUploader
	Emitter    port.FiscalEmitter
	Sink       port.CompletionSink
	Dispatcher dispatcher.Dispatcher
	Metrics    *metrics.Collectors
	Config     *WorkflowConfig
	Fiscal     *FiscalConfig
	Logger     *zap.Logger
}

// ProvideSessionManager creates the completion session manager.
func ProvideSessionManager(deps *WorkflowDeps) (*workflow.Manager, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Orders == nil || deps.Uploader == nil || deps.Emitter == nil || deps.Sink == nil {
		return nil, fmt.Errorf("orders, uploader, emitter and sink are required")
	}

	opts := []workflow.ManagerOption{
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(&zapLoggerAdapter{logger: deps.Logger}),
		workflow.WithIdleTimeout(deps.Config.IdleTimeout),
		workflow.WithUploadConcurrency(deps.Config.UploadConcurrency),
		workflow.WithFiscalServiceCode(deps.Fiscal.ServiceCode),
	}
	if deps.Metrics != nil {
		opts = append(opts, workflow.WithMetrics(deps.Metrics))
	}

	return workflow.NewManager(deps.Orders, deps.Uploader, deps.Emitter, deps.Sink, opts...), nil
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Sessions  worker.IdleSweeper
	WorkerCfg *WorkflowConfig
	Logger    *zap.Logger
}

// ProvideWorkers creates the worker manager with all background workers registered.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil || deps.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)
	if deps.WorkerCfg.SweepInterval > 0 {
		sweeper := worker.NewSessionSweeper(deps.WorkerCfg.SweepInterval, deps.Sessions, deps.Logger)
		if err := manager.Register(sweeper); err != nil {
			return nil, err
		}
	}
	return manager, nil
}
