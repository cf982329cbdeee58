package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/Florentin-artemix/Galileo-sub000/internal/handler"
	"github.com/Florentin-artemix/Galileo-sub000/internal/middleware"
	"github.com/Florentin-artemix/Galileo-sub000/internal/service"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/config"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/logger"
	corsmiddleware "github.com/Florentin-artemix/Galileo-sub000/pkg/middleware/cors"
	reqidmiddleware "github.com/Florentin-artemix/Galileo-sub000/pkg/middleware/requestid"
)

type routeDeps struct {
	identity      middleware.SessionResolver
	metrics       *service.MetricsService
	submissions   *handler.SubmissionHandler
	moderation    *handler.ModerationHandler
	notifications *handler.NotificationHandler
	publications  *handler.PublicationHandler
	session       *handler.SessionHandler
	observability *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", deps.observability.Health)
	r.GET("/ready", deps.observability.Ready)
	if deps.metrics != nil {
		r.GET("/metrics", deps.observability.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authed := middleware.Authenticate(deps.identity)
	optional := middleware.OptionalAuthenticate(deps.identity)
	requireCap := middleware.RequireCapability

	api := r.Group(cfg.APIPrefix)

	api.GET("/session", authed, deps.session.Current)

	publications := api.Group("/publications", optional, requireCap(service.CapPublicationRead))
	publications.GET("", deps.publications.List)
	publications.GET("/:id", deps.publications.Get)

	submissions := api.Group("/submissions", authed)
	submissions.POST("", requireCap(service.CapSubmissionCreate), deps.submissions.Create)
	submissions.GET("/mine", requireCap(service.CapSubmissionManageOwn), deps.submissions.ListMine)
	submissions.GET("/:id", deps.submissions.Get)
	submissions.POST("/:id/transitions", deps.submissions.Transition)
	submissions.GET("/:id/audit", deps.submissions.ListAudit)
	submissions.GET("/:id/audit/export", deps.submissions.ExportAudit)
	submissions.GET("/:id/audit/verify", requireCap(service.CapAuditReadAny), deps.submissions.VerifyAudit)
	submissions.POST("/:id/notes", requireCap(service.CapAuditAnnotate), deps.submissions.AddNote)

	moderation := api.Group("/moderation", authed)
	moderation.GET("/queue", requireCap(service.CapQueueRead), deps.moderation.Queue)
	moderation.POST("/queue/:id/assign", requireCap(service.CapQueueAssign), deps.moderation.Assign)
	moderation.DELETE("/queue/:id/assign", requireCap(service.CapQueueAssign), deps.moderation.Release)
	moderation.PATCH("/queue/:id/priority", requireCap(service.CapQueueReprioritize), deps.moderation.Reprioritize)
	moderation.PUT("/watches/:domain", requireCap(service.CapDomainWatch), deps.moderation.WatchDomain)

	notifications := api.Group("/notifications", authed, requireCap(service.CapNotificationManage))
	notifications.GET("", deps.notifications.List)
	notifications.POST("/:id/read", deps.notifications.MarkRead)
	notifications.PUT("/preferences/:kind", deps.notifications.SetPreference)

	api.GET("/metrics/summary", authed, requireCap(service.CapAuditReadAny), deps.observability.Summary)

	return r
}
