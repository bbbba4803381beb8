package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/linkcard/internal/services"
	"github.com/charlesng35/linkcard/pkg/response"
)

// SettingsHandler reads and updates the runtime card settings.
type SettingsHandler struct {
	settings *services.SettingsService
}

func NewSettingsHandler(settings *services.SettingsService) (*SettingsHandler, error) {
	if settings == nil {
		return nil, errors.New("settings handler: service is required")
	}
	return &SettingsHandler{settings: settings}, nil
}

// GET /api/admin/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.settings.CardSettings(c.Request.Context())
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusOK, settings)
}

// PUT /api/admin/settings
func (h *SettingsHandler) Update(c *gin.Context) {
	var req services.UpdateCardSettingsInput
	if !bindAndValidate(c, &req) {
		return
	}

	settings, err := h.settings.UpdateCardSettings(c.Request.Context(), req)
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusOK, settings)
}
