package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/memoirvault-backend/internal/db"
	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/handlers"
	"github.com/yungbote/memoirvault-backend/internal/middleware"
	"github.com/yungbote/memoirvault-backend/internal/observability"
	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
	"github.com/yungbote/memoirvault-backend/internal/platform/mediastore"
	"github.com/yungbote/memoirvault-backend/internal/platform/similarity"
	"github.com/yungbote/memoirvault-backend/internal/realtime/bus"
	"github.com/yungbote/memoirvault-backend/internal/repos"
	"github.com/yungbote/memoirvault-backend/internal/server"
	"github.com/yungbote/memoirvault-backend/internal/services"
	"github.com/yungbote/memoirvault-backend/internal/sse"
)

type Repos struct {
	Jobs      repos.JobRepo
	Batches   repos.BatchRepo
	Artifacts repos.ArtifactRepo
	Threads   repos.ThreadRepo
	Messages  repos.MessageRepo
}

type Services struct {
	Runner     services.JobRunner
	Ingestion  services.IngestionService
	Uploads    services.UploadService
	Export     services.ExportService
	Backup     services.BackupService
	DeadLetter services.DeadLetterService
}

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Router   *gin.Engine
	Repos    Repos
	Services Services
	SSEHub   *sse.SSEHub
	Bus      bus.Bus
	Media    mediastore.Store

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})

	dbService, err := db.New(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := dbService.DB()

	reposet := Repos{
		Jobs:      repos.NewJobRepo(theDB, log),
		Batches:   repos.NewBatchRepo(theDB, log),
		Artifacts: repos.NewArtifactRepo(theDB, log),
		Threads:   repos.NewThreadRepo(theDB, log),
		Messages:  repos.NewMessageRepo(theDB, log),
	}

	ssehub := sse.NewSSEHub(log)
	eventBus := newBus(log)

	media, err := mediastore.NewFromEnv(context.Background(), log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init media store: %w", err)
	}
	deadLetter, err := services.NewDeadLetterService(log, cfg.DataDir)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init dead letter sink: %w", err)
	}
	uploads, err := services.NewUploadService(log, cfg.UploadDir)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init upload service: %w", err)
	}
	export, err := services.NewExportService(theDB, log, reposet.Threads, reposet.Messages, cfg.ExportDir)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init export service: %w", err)
	}
	backup, err := services.NewBackupService(theDB, log, filepath.Join(cfg.DataDir, "backups"))
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init backup service: %w", err)
	}

	notifier := services.NewJobNotifier(log, eventBus)
	runner := services.NewJobRunner(theDB, log, reposet.Jobs, notifier, cfg.JobWorkers, cfg.JobQueueSize)
	ingestion := services.NewIngestionService(
		theDB,
		log,
		reposet.Batches,
		reposet.Artifacts,
		reposet.Threads,
		reposet.Messages,
		media,
		similarity.NewPusher(log),
		deadLetter,
	)

	runner.Register(domain.JobTypeIngestion, ingestion.HandleJob)
	runner.Register(domain.JobTypeExport, export.HandleJob)
	runner.Register(domain.JobTypeBackup, backup.HandleJob)

	authMiddleware := middleware.NewAuthMiddleware(log, cfg.JWTSecret)
	router := server.NewRouter(server.RouterConfig{
		ServiceName:       cfg.ServiceName,
		AllowedOrigins:    server.SplitOrigins(cfg.AllowedOrigins),
		AuthMiddleware:    authMiddleware,
		JobsHandler:       handlers.NewJobsHandler(runner),
		ImportsHandler:    handlers.NewImportsHandler(ingestion, uploads, runner),
		MessagesHandler:   handlers.NewMessagesHandler(reposet.Threads, reposet.Messages, runner),
		DeadLetterHandler: handlers.NewDeadLetterHandler(deadLetter),
		SSEHandler:        handlers.NewSSEHandler(ssehub),
	})

	return &App{
		Log:    log,
		Cfg:    cfg,
		DB:     theDB,
		Router: router,
		Repos:  reposet,
		Services: Services{
			Runner:     runner,
			Ingestion:  ingestion,
			Uploads:    uploads,
			Export:     export,
			Backup:     backup,
			DeadLetter: deadLetter,
		},
		SSEHub:       ssehub,
		Bus:          eventBus,
		Media:        media,
		otelShutdown: otelShutdown,
	}, nil
}

// newBus picks redis fan-out when REDIS_ADDR is configured, otherwise the
// in-process loopback.
func newBus(log *logger.Logger) bus.Bus {
	if os.Getenv("REDIS_ADDR") == "" {
		return bus.NewLocalBus()
	}
	b, err := bus.NewRedisBus(log)
	if err != nil {
		log.Warn("redis bus unavailable, using local bus", "error", err)
		return bus.NewLocalBus()
	}
	return b
}

func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	if err := a.Bus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
		return fmt.Errorf("start sse forwarder: %w", err)
	}
	a.Services.Runner.Start(ctx)
	// Daily snapshot on startup; skip-if-exists makes restarts cheap.
	if a.DB.Dialector.Name() == "sqlite" {
		if _, err := a.Services.Runner.Submit(ctx, domain.BackupPayload{}); err != nil {
			a.Log.Warn("failed to schedule startup backup", "error", err)
		}
	}
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Services.Runner.Shutdown(ctx); err != nil {
		a.Log.Warn("job runner shutdown incomplete", "error", err)
	}
	if err := a.Bus.Close(); err != nil {
		a.Log.Warn("bus close failed", "error", err)
	}
	if err := a.Media.Close(); err != nil {
		a.Log.Warn("media store close failed", "error", err)
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
