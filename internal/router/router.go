package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/weibaohui/insurebot/config"
	"github.com/weibaohui/insurebot/internal/handler"
)

func Setup(
	cfg *config.Config,
	webhookHandler *handler.WebhookHandler,
	adminHandler *handler.AdminHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.GET("/healthz", handler.Health)

	api := r.Group("/api")
	{
		// Telegram 推送不需要跨域与压缩
		webhookHandler.RegisterRoutes(api)

		admin := api.Group("")
		// 令牌走请求头，不开启 AllowCredentials
		admin.Use(cors.New(cors.Config{
			AllowOrigins:  []string{"*"},
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Admin-Token"},
			ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		}))
		admin.Use(handler.AdminAuth(cfg.Admin.Token))
		admin.Use(gzip.Gzip(gzip.DefaultCompression))
		adminHandler.RegisterRoutes(admin)
	}

	return r
}
