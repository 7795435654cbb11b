package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/mtb-case-api/internal/repository"
	"github.com/noah-isme/mtb-case-api/internal/service"
	"github.com/noah-isme/mtb-case-api/pkg/cache"
	"github.com/noah-isme/mtb-case-api/pkg/config"
	"github.com/noah-isme/mtb-case-api/pkg/database"
	"github.com/noah-isme/mtb-case-api/pkg/export"
	"github.com/noah-isme/mtb-case-api/pkg/jobs"
	"github.com/noah-isme/mtb-case-api/pkg/logger"
	"github.com/noah-isme/mtb-case-api/pkg/processing"
	"github.com/noah-isme/mtb-case-api/pkg/storage"
)

// @title MTB Case API
// @version 1.0.0
// @description Tumor board case management: drafts, cases, boards and opinions
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const processingQueueName = "case-processing"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Drafts.UseRedis {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	blobs, local, err := newBlobStore(ctx, cfg.Storage)
	if err != nil {
		logr.Fatal("failed to init blob storage", zap.Error(err))
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			logr.Fatal("invalid APP_TIMEZONE", zap.String("timezone", cfg.Timezone), zap.Error(err))
		}
	}

	app := buildServices(cfg, db, redisClient, blobs, loc, logr)

	queue := jobs.NewQueue(processingQueueName, app.processing.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Processing.Workers,
		MaxRetries: cfg.Processing.MaxRetries,
		RetryDelay: cfg.Processing.RetryDelay,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()
	app.processing.AttachQueue(queue)
	app.metrics.RegisterQueueDepth(processingQueueName, queue.Len)

	unsubscribe := app.drafts.Subscribe(app.events)
	defer unsubscribe()

	if local != nil {
		go runDraftJanitor(ctx, app.drafts, local, cfg.Drafts, logr)
	}

	router := newRouter(cfg, app, db, redisClient, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "storage", cfg.Storage.Driver, "redis_drafts", redisClient != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

type services struct {
	auth       *service.AuthService
	profiles   *service.ProfileService
	drafts     *service.DraftService
	cases      *service.CaseService
	boards     *service.BoardService
	opinions   *service.OpinionService
	exports    *service.ExportService
	processing *service.ProcessingService
	metrics    *service.MetricsService
	events     *service.SessionEvents
	users      *repository.UserRepository
}

func buildServices(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, blobs storage.BlobStore, loc *time.Location, logr *zap.Logger) *services {
	validate := validator.New()
	metrics := service.NewMetricsService()
	events := service.NewSessionEvents()

	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	caseRepo := repository.NewCaseRepository(db)
	boardRepo := repository.NewBoardRepository(db)
	opinionRepo := repository.NewOpinionRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)

	authSvc := service.NewAuthService(userRepo, profileRepo, service.NewLogMailer(logr), events, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "mtb-case-api",
		ResetURL:           cfg.Auth.ResetURL,
		ResetTokenTTL:      cfg.Auth.ResetTokenTTL,
	})

	processingSvc := service.NewProcessingService(
		processing.NewClient(cfg.Processing.BaseURL, cfg.Processing.Timeout, nil),
		blobs, metrics, logr,
	)

	caseSvc := service.NewCaseService(service.CaseServiceDeps{
		Cases:      caseRepo,
		Opinions:   opinionRepo,
		Boards:     boardRepo,
		Blobs:      blobs,
		Signer:     storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL),
		Dispatcher: processingSvc,
		Metrics:    metrics,
		Validator:  validate,
		Logger:     logr,
		LinkPrefix: cfg.APIPrefix + "/files/",
	})

	var drafts service.DraftStore
	if redisClient != nil {
		drafts = repository.NewRedisDraftRepository(redisClient, cfg.Drafts.TTL, logr)
	} else {
		drafts = repository.NewMemoryDraftRepository(cfg.Drafts.TTL)
	}
	draftSvc := service.NewDraftService(drafts, blobs, caseSvc, caseRepo, processingSvc, validate, logr, service.DraftConfig{
		MaxFileSize:  cfg.Storage.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Storage.AllowedMIMEs,
		Location:     loc,
	})

	return &services{
		auth:       authSvc,
		profiles:   service.NewProfileService(profileRepo, feedbackRepo, validate, logr),
		drafts:     draftSvc,
		cases:      caseSvc,
		boards:     service.NewBoardService(boardRepo, caseRepo, validate, logr),
		opinions:   service.NewOpinionService(opinionRepo, caseRepo, validate, logr),
		exports:    service.NewExportService(caseSvc, export.NewCSVExporter(), export.NewPDFExporter(), loc, logr),
		processing: processingSvc,
		metrics:    metrics,
		events:     events,
		users:      userRepo,
	}
}

// newBlobStore returns the configured store. The local store is also returned
// on its own so the draft janitor can sweep it.
func newBlobStore(ctx context.Context, cfg config.StorageConfig) (storage.BlobStore, *storage.LocalStorage, error) {
	switch cfg.Driver {
	case config.StorageDriverS3:
		client, err := storage.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewS3Storage(client, cfg.Bucket), nil, nil
	case "", config.StorageDriverLocal:
		local, err := storage.NewLocalStorage(cfg.LocalDir)
		if err != nil {
			return nil, nil, err
		}
		return local, local, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// runDraftJanitor removes staged uploads whose draft has expired.
func runDraftJanitor(ctx context.Context, drafts *service.DraftService, local *storage.LocalStorage, cfg config.DraftConfig, logr *zap.Logger) {
	if cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := drafts.SweepExpiredUploads(ctx, local, cfg.TTL)
			if err != nil {
				logr.Warn("draft janitor failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired draft uploads removed", zap.Int("count", len(removed)))
			}
		}
	}
}
