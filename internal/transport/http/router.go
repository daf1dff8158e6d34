package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attachpurge/backend/internal/health"
	"attachpurge/backend/internal/middleware"
	"attachpurge/backend/internal/monitoring"
	"attachpurge/backend/internal/service"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Purge    PurgeController
	Policies *service.PolicyService
	Blobs    BlobUsage           // 可选，未使用文件存储时为 nil
	Health   *health.Checker     // 可选
	Metrics  *monitoring.Metrics // 可选
	Logger   *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	if deps.Metrics != nil {
		router.Use(middleware.Recover(deps.Metrics, log), middleware.Instrument(deps.Metrics))
	} else {
		router.Use(gin.Recovery())
	}
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())

	// 健康检查
	if deps.Health != nil {
		router.GET("/health", func(c *gin.Context) {
			Success(c, deps.Health.Report())
		})
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	purgeHandler := NewPurgeHandler(deps.Purge, deps.Blobs)
	policyHandler := NewPolicyHandler(deps.Policies)

	// V1 API
	v1 := router.Group("/api/v1")
	v1.Use(middleware.BodySizeLimit(middleware.SmallBodyLimit))
	v1.Use(middleware.ValidateContentType("application/json"))
	{
		purgeRoutes := v1.Group("/purge")
		{
			purgeRoutes.POST("/run", purgeHandler.Run)
			purgeRoutes.POST("/cancel", purgeHandler.Cancel)
			purgeRoutes.GET("/status", purgeHandler.Status)
		}

		policyRoutes := v1.Group("/policies")
		{
			policyRoutes.GET("/:scope", policyHandler.Get)
			policyRoutes.PUT("/:scope", policyHandler.Put)
			policyRoutes.DELETE("/:scope", policyHandler.Delete)
		}

		if deps.Blobs != nil {
			v1.GET("/storage/usage", purgeHandler.Usage)
		}
	}

	return router
}
