// Package render turns card records into HTML fragments and expands the
// card shortcodes found in user content.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/charlesng35/linkcard/internal/models"
	"github.com/charlesng35/linkcard/web"
)

const (
	// DefaultLoadEndpoint is the AJAX endpoint lazy placeholders load from.
	DefaultLoadEndpoint = "/api/cards/load"
	// DefaultMaxShortcodes bounds resolved shortcodes per expansion.
	DefaultMaxShortcodes = 20
)

// CardView is the template model of a single card.
type CardView struct {
	ID          string
	URL         string
	Href        string
	Title       string
	Description string
	Image       string
	Icon        string
	SiteName    string
	Failed      bool
	NewTab      bool
}

// PostView is one feed item shown under a friend link.
type PostView struct {
	Title     string
	Link      string
	Published string
	Date      string
}

// FriendLinkView is the template model of a friend-link entry.
type FriendLinkView struct {
	Name        string
	URL         string
	Description string
	Image       string
	Posts       []PostView
}

type lazyView struct {
	URL      string
	Endpoint string
	NewTab   bool
}

// NewCardView builds the template model for card. When trackClicks is set
// and the card has been stored, the link goes through the click redirect.
func NewCardView(card *models.Card, openInNewTab, trackClicks bool) CardView {
	view := CardView{
		ID:          card.ID,
		URL:         card.URL,
		Href:        card.URL,
		Title:       card.Title,
		Description: card.Description,
		Image:       card.ImageURL,
		Icon:        card.IconURL,
		SiteName:    card.SiteName,
		Failed:      card.Failed,
		NewTab:      openInNewTab,
	}
	if trackClicks && card.ID != "" {
		view.Href = "/c/" + card.ID
	}
	return view
}

// NewPostView formats a feed item for display.
func NewPostView(title, link string, published *time.Time) PostView {
	view := PostView{Title: title, Link: link}
	if published != nil {
		view.Published = published.UTC().Format(time.RFC3339)
		view.Date = published.UTC().Format("2006-01-02")
	}
	return view
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLoadEndpoint overrides the endpoint written into lazy placeholders.
func WithLoadEndpoint(endpoint string) Option {
	return func(r *Renderer) {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			r.loadEndpoint = endpoint
		}
	}
}

// WithNewTab controls whether lazy placeholders open in a new tab.
func WithNewTab(enabled bool) Option {
	return func(r *Renderer) {
		r.newTab = enabled
	}
}

// WithMaxShortcodes caps how many [custom_card] and [friend_links]
// shortcodes one ExpandShortcodes call resolves. Lazy placeholders are not
// counted.
func WithMaxShortcodes(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.maxShortcodes = n
		}
	}
}

// Renderer executes the embedded card templates. It is safe for concurrent use.
type Renderer struct {
	tmpl         *template.Template
	loadEndpoint  string
	newTab        bool
	maxShortcodes int
}

// New parses the embedded templates.
func New(opts ...Option) (*Renderer, error) {
	templates, err := web.FS()
	if err != nil {
		return nil, fmt.Errorf("render: open templates: %w", err)
	}
	tmpl, err := template.ParseFS(templates, "*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("render: parse templates: %w", err)
	}

	r := &Renderer{tmpl: tmpl, loadEndpoint: DefaultLoadEndpoint, newTab: true, maxShortcodes: DefaultMaxShortcodes}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Card writes the HTML of one card.
func (r *Renderer) Card(w io.Writer, view CardView) error {
	return r.tmpl.ExecuteTemplate(w, "card", view)
}

// LazyPlaceholder writes a placeholder that the front end replaces by the
// card returned from the load endpoint.
func (r *Renderer) LazyPlaceholder(w io.Writer, url string) error {
	return r.tmpl.ExecuteTemplate(w, "card_lazy", lazyView{URL: url, Endpoint: r.loadEndpoint, NewTab: r.newTab})
}

// FriendLinks writes the friend-link directory.
func (r *Renderer) FriendLinks(w io.Writer, links []FriendLinkView) error {
	return r.tmpl.ExecuteTemplate(w, "friend_links", links)
}

// CardHTML is Card rendered into a string.
func (r *Renderer) CardHTML(view CardView) (string, error) {
	var buf bytes.Buffer
	if err := r.Card(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}
