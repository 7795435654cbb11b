package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/mtb-case-api/api/swagger"
	"github.com/noah-isme/mtb-case-api/internal/handler"
	"github.com/noah-isme/mtb-case-api/internal/middleware"
	"github.com/noah-isme/mtb-case-api/internal/models"
	"github.com/noah-isme/mtb-case-api/pkg/config"
	"github.com/noah-isme/mtb-case-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/mtb-case-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/mtb-case-api/pkg/middleware/requestid"
)

const (
	// maxFilesPerUpload bounds one multipart request together with uploadOverhead.
	maxFilesPerUpload = 10
	uploadOverhead    = 1 << 20
)

func newRouter(cfg *config.Config, app *services, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metrics))

	checks := map[string]handler.Pinger{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(app.metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	audit := func(action, resource, param string) gin.HandlerFunc {
		return middleware.Audit(app.users, logr, action, resource, param)
	}

	authHandler := handler.NewAuthHandler(app.auth)
	profileHandler := handler.NewProfileHandler(app.profiles)
	draftHandler := handler.NewDraftHandler(app.drafts, maxFilesPerUpload*cfg.Storage.MaxFileSizeBytes+uploadOverhead)
	caseHandler := handler.NewCaseHandler(app.cases, app.exports, app.opinions)
	boardHandler := handler.NewBoardHandler(app.boards)
	fileHandler := handler.NewFileHandler(app.cases)
	internalHandler := handler.NewInternalHandler(app.cases)

	api := r.Group(cfg.APIPrefix)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.AuthPerMinute, cfg.RateLimit.AuthBurst)
	auth := api.Group("/auth")
	{
		public := auth.Group("", limiter.Middleware())
		public.POST("/signup", authHandler.SignUp)
		public.POST("/login", authHandler.SignIn)
		public.POST("/refresh", authHandler.Refresh)
		public.POST("/forgot-password", authHandler.RequestPasswordReset)
		public.POST("/reset-password", authHandler.ConfirmPasswordReset)

		auth.POST("/logout", middleware.JWT(app.auth), authHandler.SignOut)
		auth.GET("/me", middleware.JWT(app.auth), authHandler.Me)
	}

	api.GET("/files/:token", fileHandler.Download)
	api.POST("/internal/cases/:id/summary", middleware.SharedSecret(cfg.Processing.CallbackSecret), internalHandler.CaseSummary)

	secured := api.Group("")
	secured.Use(middleware.JWT(app.auth))
	{
		secured.GET("/profile", profileHandler.Get)
		secured.PUT("/profile", profileHandler.Update)
		secured.POST("/feedback", profileHandler.SubmitFeedback)

		drafts := secured.Group("/drafts")
		drafts.GET("", draftHandler.Get)
		drafts.DELETE("", draftHandler.Cancel)
		drafts.PUT("/patient", draftHandler.SetPatientDetails)
		drafts.POST("/files", draftHandler.UploadFiles)
		drafts.POST("/notes", draftHandler.AddTextNote)
		drafts.DELETE("/files/:fileId", draftHandler.RemoveFile)
		drafts.GET("/case-name", draftHandler.SuggestCaseName)
		drafts.POST("/submit", audit(models.AuditActionCaseCreate, "cases", ""), draftHandler.Submit)

		cases := secured.Group("/cases")
		cases.GET("", caseHandler.List)
		cases.POST("", audit(models.AuditActionCaseCreate, "cases", ""), caseHandler.Create)
		cases.GET("/check-name", caseHandler.CheckName)
		cases.GET("/export", caseHandler.ExportList)
		cases.GET("/:id", caseHandler.Get)
		cases.PATCH("/:id", audit(models.AuditActionCaseUpdate, "cases", "id"), caseHandler.Update)
		cases.DELETE("/:id", audit(models.AuditActionCaseDelete, "cases", "id"), caseHandler.Delete)
		cases.POST("/:id/reprocess", caseHandler.Reprocess)
		cases.GET("/:id/export", caseHandler.ExportCase)
		cases.GET("/:id/documents/:docId/link", caseHandler.DocumentLink)
		cases.POST("/:id/opinions", audit(models.AuditActionOpinionSubmit, "cases", "id"), caseHandler.SubmitOpinion)
		secured.PUT("/opinions/:id", audit(models.AuditActionOpinionUpdate, "opinions", "id"), caseHandler.UpdateOpinion)

		boards := secured.Group("/boards")
		boards.GET("", boardHandler.List)
		boards.POST("", audit(models.AuditActionBoardCreate, "boards", ""), boardHandler.Create)
		boards.POST("/join", audit(models.AuditActionBoardJoin, "boards", ""), boardHandler.Join)
		boards.GET("/:id", boardHandler.Get)
		boards.DELETE("/:id/membership", audit(models.AuditActionBoardLeave, "boards", "id"), boardHandler.Leave)
		boards.POST("/:id/cases", audit(models.AuditActionCaseShare, "boards", "id"), boardHandler.ShareCase)
	}

	return r
}
