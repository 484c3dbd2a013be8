package router

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hlpne/AdBoard-MMO-RPG/internal/config"
	"github.com/hlpne/AdBoard-MMO-RPG/internal/handler"
	"github.com/hlpne/AdBoard-MMO-RPG/internal/mail"
)

// SetupRouter 配置 Gin 引擎和路由。
func SetupRouter(gdb *gorm.DB, mailer mail.Mailer, cfg config.AppConfig) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	r := gin.Default()

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions("adboard_session", store))

	api := handler.NewAPI(gdb, mailer, cfg)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Public routes.
	r.POST("/signup", api.Signup)
	r.POST("/verify", api.VerifyEmail)
	r.POST("/login", api.Login)
	r.POST("/logout", api.Logout)
	r.GET("/adverts", api.ListAdverts)
	r.GET("/adverts/:id", api.GetAdvert)
	r.GET("/categories", api.ListCategories)

	// Authenticated routes.
	auth := r.Group("")
	auth.Use(handler.AuthRequired())
	{
		auth.GET("/profile", api.Profile)

		auth.POST("/adverts", api.CreateAdvert)
		auth.PUT("/adverts/:id", api.UpdateAdvert)
		auth.DELETE("/adverts/:id", api.DeleteAdvert)
		auth.POST("/adverts/preview", api.PreviewAdvert)

		auth.POST("/replies", api.CreateReply)
		auth.GET("/replies/my", api.MyReplies)
		auth.POST("/replies/:id/accept", api.AcceptReply)
		auth.POST("/replies/:id/delete", api.DeleteReply)

		auth.POST("/newsletter/subscribe", api.Subscribe)
		auth.POST("/newsletter/unsubscribe", api.Unsubscribe)

		// Staff-only broadcast management.
		staff := auth.Group("/newsletter")
		staff.Use(api.StaffRequired())
		{
			staff.POST("/templates", api.CreateTemplate)
			staff.POST("/templates/:id/dispatch", api.DispatchNewsletter)
			staff.GET("/templates/:id/job", api.NewsletterJobStatus)
		}

		categories := auth.Group("/categories")
		categories.Use(api.StaffRequired())
		{
			categories.POST("", api.CreateCategory)
		}
	}

	return r
}
