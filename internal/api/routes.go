package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	_ "github.com/mautops/videoflow-gin/docs" // 导入生成的 docs 包
	"github.com/mautops/videoflow-gin/internal/apperr"
	"github.com/mautops/videoflow-gin/internal/auth"
	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/metrics"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Config *config.Config

	// Authenticator 为空时不挂认证中间件，仅用于测试
	Authenticator gin.HandlerFunc

	Health  *HealthController
	Review  *ReviewController
	Order   *OrderController
	Payment *PaymentController
	Admin   *AdminController
}

// SetupRoutes 配置路由
func SetupRoutes(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())
	if cfg.Tracing.Enabled {
		router.Use(TracingMiddleware(cfg.Tracing.ServiceName))
	}
	router.Use(CORSMiddleware(cfg.CORS))
	router.Use(SecurityHeadersMiddleware(cfg.Env == "production"))
	router.Use(ErrorHandlerMiddleware())

	// 健康检查
	if deps.Health != nil {
		router.GET("/health", deps.Health.Check)
	}

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Swagger UI 路由
	if cfg.Server.SwaggerEnabled {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
			ginSwagger.URL("/swagger/doc.json"),
		))
	}

	v1 := router.Group("/api/v1")

	// 支付回调由渠道直接调用，只做限流不做认证，真实性由验签保证
	if deps.Payment != nil {
		v1.POST("/payments/callback/:provider",
			RateLimitMiddleware(cfg.RateLimit.CallbackRPS, cfg.RateLimit.CallbackBurst),
			deps.Payment.Callback)
	}

	authed := v1.Group("")
	if deps.Authenticator != nil {
		authed.Use(deps.Authenticator)
	}

	// 作品审核路由
	if c := deps.Review; c != nil {
		items := authed.Group("/review-items")
		{
			items.POST("", c.Create)
			items.GET("", c.List)
			items.GET("/:id", c.Get)
			items.POST("/:id/initial-review", c.InitialReview)
			items.POST("/:id/quote", c.Quote)
			items.POST("/:id/accept-quote", c.AcceptQuote)
			items.POST("/:id/start-production", c.StartProduction)
			items.POST("/:id/deliver", c.Deliver)
			items.POST("/:id/request-modification", c.RequestModification)
			items.POST("/:id/confirm-delivery", c.ConfirmDelivery)
			items.POST("/:id/publish", c.Publish)
			items.POST("/:id/take-offline", c.TakeOffline)
			items.POST("/:id/republish", c.Republish)
			items.GET("/:id/logs", c.Logs)
			items.GET("/:id/messages", c.ListMessages)
			items.POST("/:id/messages", c.AddMessage)
		}
	}

	// 订单路由
	if c := deps.Order; c != nil {
		orders := authed.Group("/orders")
		{
			orders.POST("", c.Checkout)
			orders.GET("", c.List)
			orders.GET("/:id", c.Get)
			orders.POST("/:id/pay", c.Pay)
			orders.POST("/:id/cancel", c.Cancel)
			orders.POST("/:id/refund", c.RequestRefund)
			orders.POST("/:id/refund/reject", c.RejectRefund)
			orders.POST("/:id/refund/complete", c.CompleteRefund)
			orders.GET("/:id/logs", c.Logs)
			orders.GET("/:id/tasks", c.Tasks)
		}
	}

	// 运营管理路由
	if c := deps.Admin; c != nil {
		admin := authed.Group("/admin", RequireAdmin())
		{
			admin.POST("/sweep", c.TriggerSweep)
			admin.GET("/sweep/last", c.LastSweep)
			admin.GET("/stats/overview", c.Overview)
		}
	}

	// 自定义 NoRoute 处理器,返回 JSON 格式的 404
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, apperr.ErrNotFound.Code, "route not found", "the requested route does not exist")
	})

	return router
}

// NewAuthenticator 根据配置创建 Keycloak 认证中间件
func NewAuthenticator(cfg config.KeycloakConfig) gin.HandlerFunc {
	validator := auth.NewKeycloakTokenValidator(cfg.Issuer, cfg.JWKSURL)
	return auth.KeycloakAuthMiddleware(validator, cfg.AdminRole)
}
