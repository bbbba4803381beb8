package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/linkcard/internal/auth"
	"github.com/charlesng35/linkcard/internal/middleware"
	appErrors "github.com/charlesng35/linkcard/pkg/errors"
	"github.com/charlesng35/linkcard/pkg/logger"
	"github.com/charlesng35/linkcard/pkg/metrics"
	"github.com/charlesng35/linkcard/pkg/response"
)

// AuthHandler issues admin bearer tokens.
type AuthHandler struct {
	admin *iauth.AdminAuthenticator
	log   *zap.Logger
}

func NewAuthHandler(admin *iauth.AdminAuthenticator) (*AuthHandler, error) {
	if admin == nil {
		return nil, errors.New("auth handler: admin authenticator is required")
	}
	return &AuthHandler{admin: admin, log: logger.WithModule("auth")}, nil
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.admin.Login(req.Username, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		switch {
		case errors.Is(err, iauth.ErrAdminDisabled):
			response.Error(c, appErrors.ErrServiceUnavailable.WithMessage("Admin login is not configured"))
		case errors.Is(err, iauth.ErrInvalidCredentials):
			h.log.Warn("admin login rejected", zap.String("client_ip", middleware.ClientIP(c)))
			response.Error(c, appErrors.ErrInvalidCredentials)
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	response.Success(c, http.StatusOK, result)
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	username := c.GetString(middleware.CtxUsernameKey)
	if username == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	payload := gin.H{"username": username}
	if v, ok := c.Get(middleware.CtxClaimsKey); ok {
		if claims, ok := v.(*iauth.Claims); ok {
			payload["role"] = claims.Role
			if claims.ExpiresAt != nil {
				payload["expires_at"] = claims.ExpiresAt.Time
			}
		}
	}
	response.Success(c, http.StatusOK, payload)
}
