package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/linkcard/internal/middleware"
	"github.com/charlesng35/linkcard/internal/models"
	"github.com/charlesng35/linkcard/internal/render"
	"github.com/charlesng35/linkcard/internal/services"
	appErrors "github.com/charlesng35/linkcard/pkg/errors"
	"github.com/charlesng35/linkcard/pkg/logger"
	"github.com/charlesng35/linkcard/pkg/response"
)

// CardHandler serves the public card endpoints: AJAX load, click tracking,
// the HTML embed and shortcode rendering.
type CardHandler struct {
	cards    *services.CardService
	clicks   *services.ClickService
	settings services.CardSettingsProvider
	renderer *render.Renderer
	resolver render.Resolver
	log      *zap.Logger
}

// NewCardHandler wires the public card endpoints.
func NewCardHandler(cards *services.CardService, clicks *services.ClickService, settings services.CardSettingsProvider, renderer *render.Renderer, resolver render.Resolver) (*CardHandler, error) {
	switch {
	case cards == nil:
		return nil, errors.New("card handler: card service is required")
	case clicks == nil:
		return nil, errors.New("card handler: click service is required")
	case settings == nil:
		return nil, errors.New("card handler: settings provider is required")
	case renderer == nil:
		return nil, errors.New("card handler: renderer is required")
	case resolver == nil:
		return nil, errors.New("card handler: resolver is required")
	}
	return &CardHandler{
		cards:    cards,
		clicks:   clicks,
		settings: settings,
		renderer: renderer,
		resolver: resolver,
		log:      logger.WithModule("cards"),
	}, nil
}

type loadCardRequest struct {
	URL string `json:"url" validate:"required,weburl"`
}

type renderRequest struct {
	Content string `json:"content" validate:"max=1048576"`
}

type cardPayload struct {
	*models.Card
	HTML string `json:"html"`
}

// POST /api/cards/load
func (h *CardHandler) Load(c *gin.Context) {
	var req loadCardRequest
	if !bindAndValidate(c, &req) {
		return
	}
	h.load(c, req.URL)
}

// GET /api/cards/load?url=
func (h *CardHandler) LoadQuery(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("url"))
	if raw == "" {
		response.Error(c, appErrors.NewBadRequest("url is required"))
		return
	}
	h.load(c, raw)
}

func (h *CardHandler) load(c *gin.Context, raw string) {
	ctx := c.Request.Context()
	card, err := h.cards.GetCardData(ctx, raw)
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}

	settings := h.currentSettings(c)
	html, err := h.renderer.CardHTML(render.NewCardView(card, settings.OpenInNewTab, settings.TrackClicks))
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, cardPayload{Card: card, HTML: html})
}

// POST /api/cards/:id/click
func (h *CardHandler) Click(c *gin.Context) {
	card, clickID, ok := h.recordClick(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"click_id": clickID, "url": card.URL})
}

// GET /c/:id
func (h *CardHandler) Redirect(c *gin.Context) {
	card, _, ok := h.recordClick(c)
	if !ok {
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, card.URL)
}

// recordClick resolves the card and appends a click when tracking is on.
// Inactive cards are reported as missing.
func (h *CardHandler) recordClick(c *gin.Context) (*models.Card, string, bool) {
	ctx := c.Request.Context()
	card, err := h.cards.Get(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, serviceError(err))
		return nil, "", false
	}
	if !card.IsActive() {
		response.Error(c, serviceError(services.ErrCardNotFound))
		return nil, "", false
	}

	if !h.currentSettings(c).TrackClicks {
		return card, "", true
	}

	clickID, err := h.clicks.RecordClick(ctx, card.ID, services.ClickInput{
		IP:        middleware.ClientIP(c),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
	})
	if err != nil {
		// The visitor still gets through; the click is lost.
		h.log.Warn("record click failed", zap.String("card_id", card.ID), zap.Error(err))
		return card, "", true
	}
	return card, clickID, true
}

// GET /embed?url=&lazy=
func (h *CardHandler) Embed(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("url"))
	if raw == "" {
		response.Error(c, appErrors.NewBadRequest("url is required"))
		return
	}

	var buf bytes.Buffer
	if lazy, _ := strconv.ParseBool(c.Query("lazy")); lazy {
		normalized, err := services.NormalizeURL(raw)
		if err != nil {
			response.Error(c, serviceError(err))
			return
		}
		if err := h.renderer.LazyPlaceholder(&buf, normalized); err != nil {
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
			return
		}
	} else {
		view, err := h.resolver.Card(c.Request.Context(), raw)
		if err != nil {
			response.Error(c, serviceError(err))
			return
		}
		if err := h.renderer.Card(&buf, view); err != nil {
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
			return
		}
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// POST /api/render
func (h *CardHandler) Render(c *gin.Context) {
	var req renderRequest
	if !bindAndValidate(c, &req) {
		return
	}

	html, err := h.renderer.ExpandShortcodes(c.Request.Context(), req.Content, h.resolver)
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"html": html})
}

func (h *CardHandler) currentSettings(c *gin.Context) services.CardSettings {
	settings, err := h.settings.CardSettings(c.Request.Context())
	if err != nil {
		h.log.Warn("card settings unavailable, using defaults", zap.Error(err))
		return services.DefaultCardSettings()
	}
	return settings
}
