package render

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"
)

// Resolver supplies the data behind shortcodes.
type Resolver interface {
	Card(ctx context.Context, url string) (CardView, error)
	FriendLinks(ctx context.Context, withPosts bool) ([]FriendLinkView, error)
}

var (
	shortcodePattern = regexp.MustCompile(`\[(custom_card_lazy|custom_card|friend_links)(\s[^\[\]]*)?\]`)
	shortcodeAttr    = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_-]*)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'\]]+))`)
)

// ExpandShortcodes replaces [custom_card url="…"], [custom_card_lazy url="…"]
// and [friend_links] in content. Other bracketed text is left untouched.
// Problems with a single shortcode are rendered as an HTML comment in its
// place and never fail the whole expansion; only ctx cancellation does.
// Shortcodes that go through resolver are capped per call; the ones past
// the cap become a "limit exceeded" comment.
func (r *Renderer) ExpandShortcodes(ctx context.Context, content string, resolver Resolver) (string, error) {
	matches := shortcodePattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content, nil
	}

	var out strings.Builder
	last, resolved := 0, 0
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		out.WriteString(content[last:m[0]])
		last = m[1]

		name := content[m[2]:m[3]]
		if name != "custom_card_lazy" {
			if resolved >= r.maxShortcodes {
				out.WriteString(comment(name, "limit exceeded"))
				continue
			}
			resolved++
		}
		var rawAttrs string
		if m[4] >= 0 {
			rawAttrs = content[m[4]:m[5]]
		}
		out.WriteString(r.expandOne(ctx, name, parseAttrs(rawAttrs), resolver))
	}
	out.WriteString(content[last:])
	return out.String(), nil
}

func (r *Renderer) expandOne(ctx context.Context, name string, attrs map[string]string, resolver Resolver) string {
	var buf bytes.Buffer
	switch name {
	case "custom_card", "custom_card_lazy":
		url := strings.TrimSpace(attrs["url"])
		if url == "" {
			return comment(name, "missing url")
		}
		if name == "custom_card_lazy" {
			if err := r.LazyPlaceholder(&buf, url); err != nil {
				return comment(name, "render failed")
			}
			return buf.String()
		}
		view, err := resolver.Card(ctx, url)
		if err != nil {
			return comment(name, "invalid url")
		}
		if err := r.Card(&buf, view); err != nil {
			return comment(name, "render failed")
		}
	case "friend_links":
		withPosts, _ := strconv.ParseBool(attrs["posts"])
		links, err := resolver.FriendLinks(ctx, withPosts)
		if err != nil {
			return comment(name, "unavailable")
		}
		if err := r.FriendLinks(&buf, links); err != nil {
			return comment(name, "render failed")
		}
	}
	return buf.String()
}

func parseAttrs(raw string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range shortcodeAttr.FindAllStringSubmatch(raw, -1) {
		key := strings.ToLower(m[1])
		if _, seen := attrs[key]; seen {
			continue
		}
		attrs[key] = m[2] + m[3] + m[4]
	}
	return attrs
}

func comment(name, reason string) string {
	return "<!-- " + name + ": " + reason + " -->"
}
