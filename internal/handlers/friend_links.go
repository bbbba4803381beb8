package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/linkcard/internal/services"
	appErrors "github.com/charlesng35/linkcard/pkg/errors"
	"github.com/charlesng35/linkcard/pkg/response"
)

// FriendLinkHandler exposes the links directory and its admin CRUD.
type FriendLinkHandler struct {
	links *services.FriendLinkService
}

// NewFriendLinkHandler constructs a FriendLinkHandler.
func NewFriendLinkHandler(links *services.FriendLinkService) (*FriendLinkHandler, error) {
	if links == nil {
		return nil, errors.New("friend link handler: service is required")
	}
	return &FriendLinkHandler{links: links}, nil
}

type createFriendLinkRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	URL         string `json:"url" validate:"required,weburl"`
	Description string `json:"description" validate:"max=1000"`
	Image       string `json:"image" validate:"omitempty,weburl"`
	RSSURL      string `json:"rss_url" validate:"omitempty,weburl"`
	Visible     *bool  `json:"visible"`
	SortOrder   int    `json:"sort_order"`
}

type updateFriendLinkRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=120"`
	URL         *string `json:"url" validate:"omitempty,weburl"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	Image       *string `json:"image"`
	RSSURL      *string `json:"rss_url"`
	Visible     *bool   `json:"visible"`
	SortOrder   *int    `json:"sort_order"`
}

// GET /api/friend-links
func (h *FriendLinkHandler) List(c *gin.Context) {
	links, err := h.links.List(c.Request.Context(), false)
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusOK, links)
}

// GET /api/admin/friend-links
func (h *FriendLinkHandler) ListAll(c *gin.Context) {
	links, err := h.links.List(c.Request.Context(), true)
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusOK, links)
}

// GET /api/friend-links/:id/posts
func (h *FriendLinkHandler) Posts(c *gin.Context) {
	ctx := c.Request.Context()
	link, err := h.links.Get(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	if !link.Visible {
		response.Error(c, serviceError(services.ErrFriendLinkNotFound))
		return
	}

	posts, err := h.links.LatestPosts(ctx, link.ID)
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	if posts == nil {
		posts = []services.FeedItem{}
	}
	response.Success(c, http.StatusOK, posts)
}

// POST /api/admin/friend-links
func (h *FriendLinkHandler) Create(c *gin.Context) {
	var req createFriendLinkRequest
	if !bindAndValidate(c, &req) {
		return
	}

	link, err := h.links.Create(c.Request.Context(), services.FriendLinkInput{
		Name:        req.Name,
		URL:         req.URL,
		Description: req.Description,
		Image:       req.Image,
		RSSURL:      req.RSSURL,
		Visible:     req.Visible,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusCreated, link)
}

// PUT /api/admin/friend-links/:id
func (h *FriendLinkHandler) Update(c *gin.Context) {
	var req updateFriendLinkRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		response.Error(c, appErrors.NewBadRequest("name cannot be empty"))
		return
	}

	link, err := h.links.Update(c.Request.Context(), c.Param("id"), services.UpdateFriendLinkInput{
		Name:        req.Name,
		URL:         req.URL,
		Description: req.Description,
		Image:       req.Image,
		RSSURL:      req.RSSURL,
		Visible:     req.Visible,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusOK, link)
}

// DELETE /api/admin/friend-links/:id
func (h *FriendLinkHandler) Delete(c *gin.Context) {
	if err := h.links.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/admin/friend-links/refresh
func (h *FriendLinkHandler) Refresh(c *gin.Context) {
	result, err := h.links.RefreshFeeds(c.Request.Context())
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusOK, result)
}
