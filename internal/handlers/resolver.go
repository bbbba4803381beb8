package handlers

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/charlesng35/linkcard/internal/render"
	"github.com/charlesng35/linkcard/internal/services"
	"github.com/charlesng35/linkcard/pkg/logger"
)

// ServiceResolver feeds shortcode expansion from the card and friend-link services.
type ServiceResolver struct {
	cards    *services.CardService
	settings services.CardSettingsProvider
	links    *services.FriendLinkService
	log      *zap.Logger
}

// NewServiceResolver wires a resolver. links may be nil, in which case
// [friend_links] renders an empty directory.
func NewServiceResolver(cards *services.CardService, settings services.CardSettingsProvider, links *services.FriendLinkService) (*ServiceResolver, error) {
	if cards == nil {
		return nil, errors.New("resolver: card service is required")
	}
	if settings == nil {
		return nil, errors.New("resolver: settings provider is required")
	}
	return &ServiceResolver{cards: cards, settings: settings, links: links, log: logger.WithModule("render")}, nil
}

// Card resolves url into a rendered card model.
func (r *ServiceResolver) Card(ctx context.Context, url string) (render.CardView, error) {
	card, err := r.cards.GetCardData(ctx, url)
	if err != nil {
		return render.CardView{}, err
	}
	settings := r.cardSettings(ctx)
	return render.NewCardView(card, settings.OpenInNewTab, settings.TrackClicks), nil
}

// FriendLinks lists visible links, optionally with their latest posts.
func (r *ServiceResolver) FriendLinks(ctx context.Context, withPosts bool) ([]render.FriendLinkView, error) {
	if r.links == nil {
		return []render.FriendLinkView{}, nil
	}
	links, err := r.links.List(ctx, false)
	if err != nil {
		return nil, err
	}

	views := make([]render.FriendLinkView, 0, len(links))
	for i := range links {
		link := &links[i]
		view := render.FriendLinkView{
			Name:        link.Name,
			URL:         link.URL,
			Description: link.Description,
			Image:       link.Image,
		}
		if withPosts && link.RSSURL != "" {
			posts, err := r.links.LatestPosts(ctx, link.ID)
			if err != nil {
				r.log.Warn("friend link posts unavailable", zap.String("link_id", link.ID), zap.Error(err))
			}
			for _, post := range posts {
				view.Posts = append(view.Posts, render.NewPostView(post.Title, post.Link, post.Published))
			}
		}
		views = append(views, view)
	}
	return views, nil
}

func (r *ServiceResolver) cardSettings(ctx context.Context) services.CardSettings {
	settings, err := r.settings.CardSettings(ctx)
	if err != nil {
		return services.DefaultCardSettings()
	}
	return settings
}
