package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/linkcard/internal/services"
	"github.com/charlesng35/linkcard/pkg/logger"
	"github.com/charlesng35/linkcard/pkg/response"
)

const (
	defaultAdminPerPage = 20
	maxAdminPerPage     = 100
)

// AdminCardHandler exposes card management, click statistics and cache control.
type AdminCardHandler struct {
	cards  *services.CardService
	clicks *services.ClickService
	log    *zap.Logger
}

// NewAdminCardHandler constructs an AdminCardHandler.
func NewAdminCardHandler(cards *services.CardService, clicks *services.ClickService) (*AdminCardHandler, error) {
	if cards == nil {
		return nil, errors.New("admin card handler: card service is required")
	}
	if clicks == nil {
		return nil, errors.New("admin card handler: click service is required")
	}
	return &AdminCardHandler{cards: cards, clicks: clicks, log: logger.WithModule("admin")}, nil
}

type updateCardStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

type clearCacheRequest struct {
	URL string `json:"url" validate:"omitempty,weburl"`
}

// GET /api/admin/cards
func (h *AdminCardHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage := parseIntQuery(c, "per_page", defaultAdminPerPage)
	if perPage < 1 {
		perPage = defaultAdminPerPage
	}
	if perPage > maxAdminPerPage {
		perPage = maxAdminPerPage
	}

	cards, total, err := h.cards.List(c.Request.Context(), services.CardListOptions{
		Page:    page,
		PerPage: perPage,
		Search:  strings.TrimSpace(c.Query("search")),
		Status:  strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, cards, response.NewMeta(page, perPage, total))
}

// GET /api/admin/cards/:id
func (h *AdminCardHandler) Get(c *gin.Context) {
	card, err := h.cards.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusOK, card)
}

// PATCH /api/admin/cards/:id
func (h *AdminCardHandler) UpdateStatus(c *gin.Context) {
	var req updateCardStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	card, err := h.cards.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusOK, card)
}

// DELETE /api/admin/cards/:id
func (h *AdminCardHandler) Delete(c *gin.Context) {
	if err := h.cards.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/admin/cards/:id/refresh
func (h *AdminCardHandler) Refresh(c *gin.Context) {
	card, err := h.cards.Refresh(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusOK, card)
}

// GET /api/admin/cards/:id/stats?days=
func (h *AdminCardHandler) Stats(c *gin.Context) {
	stats, err := h.clicks.Stats(c.Request.Context(), c.Param("id"), parseIntQuery(c, "days", 0))
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// GET /api/admin/cards/:id/clicks.csv
func (h *AdminCardHandler) ExportClicks(c *gin.Context) {
	ctx := c.Request.Context()
	card, err := h.cards.Get(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="clicks-%s.csv"`, card.ID))
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)

	// Headers are already sent, so a failure can only be logged.
	if err := h.clicks.ExportCSV(ctx, c.Writer, card.ID); err != nil {
		h.log.Error("click export aborted", zap.String("card_id", card.ID), zap.Error(err))
	}
}

// POST /api/admin/cache/clear
func (h *AdminCardHandler) ClearCache(c *gin.Context) {
	var req clearCacheRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if req.URL != "" {
		if err := h.cards.ClearCache(ctx, req.URL); err != nil {
			response.Error(c, serviceError(err))
			return
		}
		response.Success(c, http.StatusOK, gin.H{"removed": 1, "url": req.URL})
		return
	}

	removed, err := h.cards.PurgeCache(ctx)
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": removed})
}
