package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/linkcard/internal/handlers"
	"github.com/charlesng35/linkcard/internal/middleware"
)

func registerCardRoutes(engine *gin.Engine, api *gin.RouterGroup, handler *handlers.CardHandler) {
	cards := api.Group("/cards")
	{
		cards.POST("/load", handler.Load)
		cards.GET("/load", handler.LoadQuery)
		cards.POST("/:id/click", handler.Click)
	}
	api.POST("/render", handler.Render)

	engine.GET("/c/:id", handler.Redirect)
	engine.GET("/embed", middleware.AllowFraming(), handler.Embed)
}
