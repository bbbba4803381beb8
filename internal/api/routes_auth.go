package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/linkcard/internal/auth"
	"github.com/charlesng35/linkcard/internal/handlers"
	"github.com/charlesng35/linkcard/internal/middleware"
)

func registerAuthRoutes(api *gin.RouterGroup, handler *handlers.AuthHandler, admin *iauth.AdminAuthenticator) {
	auth := api.Group("/auth")
	{
		auth.POST("/login", handler.Login)
		auth.GET("/me", middleware.Auth(admin), handler.Me)
	}
}
