package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/linkcard/internal/handlers"
)

type adminRouteDeps struct {
	Cards       *handlers.AdminCardHandler
	Settings    *handlers.SettingsHandler
	FriendLinks *handlers.FriendLinkHandler
}

func registerAdminRoutes(admin *gin.RouterGroup, deps adminRouteDeps) {
	cards := admin.Group("/cards")
	{
		cards.GET("", deps.Cards.List)
		cards.GET("/:id", deps.Cards.Get)
		cards.PATCH("/:id", deps.Cards.UpdateStatus)
		cards.DELETE("/:id", deps.Cards.Delete)
		cards.POST("/:id/refresh", deps.Cards.Refresh)
		cards.GET("/:id/stats", deps.Cards.Stats)
		cards.GET("/:id/clicks.csv", deps.Cards.ExportClicks)
	}
	admin.POST("/cache/clear", deps.Cards.ClearCache)

	admin.GET("/settings", deps.Settings.Get)
	admin.PUT("/settings", deps.Settings.Update)

	links := admin.Group("/friend-links")
	{
		links.GET("", deps.FriendLinks.ListAll)
		links.POST("", deps.FriendLinks.Create)
		links.POST("/refresh", deps.FriendLinks.Refresh)
		links.PUT("/:id", deps.FriendLinks.Update)
		links.DELETE("/:id", deps.FriendLinks.Delete)
	}
}
