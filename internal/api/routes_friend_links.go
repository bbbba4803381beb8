package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/linkcard/internal/handlers"
)

func registerFriendLinkRoutes(api *gin.RouterGroup, handler *handlers.FriendLinkHandler) {
	links := api.Group("/friend-links")
	{
		links.GET("", handler.List)
		links.GET("/:id/posts", handler.Posts)
	}
}
