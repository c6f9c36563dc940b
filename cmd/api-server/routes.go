package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"geminichat/internal/config"
	"geminichat/internal/metrics"
	"geminichat/internal/microservices/http-api/handler"
)

type routes struct {
	auth          *handler.AuthHandler
	chatrooms     *handler.ChatroomHandler
	subscriptions *handler.SubscriptionHandler
	live          gin.HandlerFunc
	authMW        gin.HandlerFunc
	otpLimit      gin.HandlerFunc
}

func newRouter(cfg *config.Config, rt routes) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.PrometheusEnabled {
		r.GET("/metrics", metrics.Handler())
	}

	auth := r.Group("/auth")
	{
		auth.POST("/signup", rt.auth.Signup)
		auth.POST("/send-otp", rt.otpLimit, rt.auth.SendOTP)
		auth.POST("/verify-otp", rt.otpLimit, rt.auth.VerifyOTP)
		auth.POST("/forgot-password", rt.otpLimit, rt.auth.ForgotPassword)
		auth.POST("/change-password", rt.authMW, rt.auth.ChangePassword)
	}

	r.GET("/user/me", rt.authMW, rt.auth.Me)

	chat := r.Group("/chatroom", rt.authMW)
	{
		chat.POST("", rt.chatrooms.Create)
		chat.GET("", rt.chatrooms.List)
		chat.GET("/:id", rt.chatrooms.Get)
		chat.POST("/:id/message", rt.chatrooms.SendMessage)
		chat.GET("/:id/messages", rt.chatrooms.ListMessages)
		chat.POST("/:id/messages/:messageId/regenerate", rt.chatrooms.Regenerate)
		chat.GET("/:id/live", rt.live)
	}

	r.POST("/subscribe/pro", rt.authMW, rt.subscriptions.SubscribePro)
	r.GET("/subscription/status", rt.authMW, rt.subscriptions.Status)
	r.GET("/subscriptions/my", rt.authMW, rt.subscriptions.Mine)
	r.POST("/webhook/stripe", rt.subscriptions.StripeWebhook)

	return r
}

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
		return cc
	}
	for _, o := range origins {
		if o == "*" {
			cc.AllowAllOrigins = true
			return cc
		}
	}
	cc.AllowOrigins = origins
	cc.AllowCredentials = true
	return cc
}
