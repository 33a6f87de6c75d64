package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qs3c/pixelchat_server/config"
	"github.com/qs3c/pixelchat_server/internal/api/handler"
	"github.com/qs3c/pixelchat_server/internal/api/middleware"
)

type Router struct {
	authHandler      *handler.AuthHandler
	userHandler      *handler.UserHandler
	plansHandler     *handler.PlansHandler
	chatHandler      *handler.ChatHandler
	billingHandler   *handler.BillingHandler
	webhookHandler   *handler.WebhookHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	plansHandler *handler.PlansHandler,
	chatHandler *handler.ChatHandler,
	billingHandler *handler.BillingHandler,
	webhookHandler *handler.WebhookHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:      authHandler,
		userHandler:      userHandler,
		plansHandler:     plansHandler,
		chatHandler:      chatHandler,
		billingHandler:   billingHandler,
		webhookHandler:   webhookHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.RequestLogger(), middleware.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })

	// Stripe 回调不走 JWT，非 POST 由 handler 返回 405
	engine.Any("/api/v1/billing/webhook", r.webhookHandler.Handle)

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
			auth.POST("/guest", r.authHandler.Guest)
			auth.GET("/github", r.authHandler.GithubAuth)
			auth.GET("/github/callback", r.authHandler.GithubCallback)
		}

		api.GET("/plans", middleware.OptionalAuth(r.cfg.JWT.Secret), r.plansHandler.List)

		// 登录用户与游客
		session := api.Group("")
		session.Use(middleware.Session(r.cfg.JWT.Secret))
		{
			session.POST("/chat/messages", r.chatHandler.Send)
			session.GET("/user/quota", r.userHandler.GetQuota)
		}

		// 仅登录用户
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			user := authenticated.Group("/user")
			{
				user.GET("/profile", r.userHandler.GetProfile)
				user.PUT("/profile", r.userHandler.UpdateProfile)
			}

			authenticated.GET("/chat/history", r.chatHandler.History)

			authenticated.POST("/billing/checkout", r.billingHandler.Checkout)
			authenticated.POST("/billing/portal", r.billingHandler.Portal)
			authenticated.POST("/promo/redeem", r.billingHandler.RedeemPromo)
		}
	}

	return engine
}
