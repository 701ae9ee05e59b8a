package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/config"
	"github.com/andrewlasiter/fda-tools-sub001/internal/transport/http/handlers"
	"github.com/andrewlasiter/fda-tools-sub001/internal/transport/http/middleware"
	"github.com/andrewlasiter/fda-tools-sub001/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth     *usecase.AuthService
	Users    *usecase.UserService
	Sessions *usecase.SessionService
	Audit    *usecase.AuditService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config     *config.AppConfig
	Logger     *zap.Logger
	Services   ServiceSet
	IdentityDB DatabaseChecker
	AuditDB    DatabaseChecker
	Cache      CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config != nil && deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))

	if deps.Config != nil && len(deps.Config.App.CORSOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.App.CORSOrigins))
	}

	if metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{}); err == nil {
		r.Use(metrics.Handler())
	} else if deps.Logger != nil {
		deps.Logger.Warn("http metrics disabled", zap.Error(err))
	}

	healthOptions := make([]handlers.HealthOption, 0, 3)

	if deps.IdentityDB != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("identity_db", deps.IdentityDB.Ping))
	}

	if deps.AuditDB != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("audit_db", deps.AuditDB.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	guard := handlers.PermissionGuard(func(permission domain.Permission) gin.HandlerFunc {
		return middleware.RequirePermission(deps.Services.Auth, permission)
	})
	sessionRequired := middleware.RequireSession(deps.Services.Auth)

	api := r.Group("/api/v1")
	{
		authHandler := handlers.NewAuthHandler(deps.Services.Auth)
		authHandler.RegisterRoutes(api.Group("/auth"))

		userHandler := handlers.NewUserHandler(deps.Services.Users)
		userGroup := api.Group("/users")
		userHandler.RegisterRoutes(userGroup, guard)

		// Password change keeps the presenting session alive, so it needs the
		// resolved session in context rather than a bare permission guard.
		api.POST("/password/change", sessionRequired, userHandler.ChangePassword)

		sessionHandler := handlers.NewSessionHandler(deps.Services.Sessions)
		sessionHandler.RegisterRoutes(api.Group("/sessions"), guard)
		userGroup.GET("/:user_id/sessions", guard(domain.PermissionSessionList), sessionHandler.ListUserSessions)

		auditHandler := handlers.NewAuditHandler(deps.Services.Audit)
		auditHandler.RegisterRoutes(api.Group("/audit"), guard)
	}

	return r
}
