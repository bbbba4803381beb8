// Package extract pulls card metadata (title, description, image, icon) out of
// raw HTML using ordered regular-expression fallbacks. Extraction is
// best-effort: malformed markup yields fewer matches and never an error.
package extract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

const (
	// DefaultTitle is returned when no title source matches.
	DefaultTitle = "untitled"
	// DefaultDescription is returned when no description source matches.
	DefaultDescription = "no description"

	minParagraphRunes = 10
	maxParagraphRunes = 200
	faviconPath       = "/favicon.ico"
)

// Metadata is the result of extracting a page.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Icon        string `json:"icon"`
	SiteName    string `json:"site_name"`
}

var (
	titlePattern     = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	h1Pattern        = regexp.MustCompile(`(?is)<h1(?:\s[^>]*)?>(.*?)</h1>`)
	paragraphPattern = regexp.MustCompile(`(?is)<p(?:\s[^>]*)?>(.*?)</p>`)
	metaPattern      = regexp.MustCompile(`(?is)<meta\s[^>]*>`)
	imgPattern       = regexp.MustCompile(`(?is)<img\s[^>]*>`)
	linkPattern      = regexp.MustCompile(`(?is)<link\s[^>]*>`)
	attrPattern      = regexp.MustCompile("(?is)([a-z][a-z0-9_:.-]*)\\s*=\\s*(?:\"([^\"]*)\"|'([^']*)'|([^\\s\"'=<>`]+))")

	stripPolicy = bluemonday.StrictPolicy()
)

// Extract runs every extraction rule against body. pageURL is used to
// resolve relative icon paths and to guess the favicon location.
func Extract(body, pageURL string) Metadata {
	metas := collectMeta(body)
	origin := Origin(pageURL)

	meta := Metadata{
		Title:       titleFrom(body, metas),
		Description: descriptionFrom(body, metas),
		Image:       imageFrom(body, metas),
		Icon:        iconFrom(body, origin),
		SiteName:    cleanText(metas["og:site_name"]),
	}
	if meta.SiteName == "" {
		if parsed, err := url.Parse(origin); err == nil {
			meta.SiteName = parsed.Host
		}
	}
	return meta
}

// Title applies the title rules on their own.
func Title(body string) string {
	return titleFrom(body, collectMeta(body))
}

// Description applies the description rules on their own.
func Description(body string) string {
	return descriptionFrom(body, collectMeta(body))
}

// Image applies the image rules on their own.
func Image(body string) string {
	return imageFrom(body, collectMeta(body))
}

// Icon applies the icon rules on their own.
func Icon(body, pageURL string) string {
	return iconFrom(body, Origin(pageURL))
}

// Origin returns scheme://host for rawURL, or "" when it has no host.
func Origin(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return ""
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + parsed.Host
}

// FaviconGuess returns origin + "/favicon.ico", or "" when rawURL has no host.
func FaviconGuess(rawURL string) string {
	origin := Origin(rawURL)
	if origin == "" {
		return ""
	}
	return origin + faviconPath
}

func titleFrom(body string, metas map[string]string) string {
	if m := titlePattern.FindStringSubmatch(body); m != nil {
		if title := cleanText(m[1]); title != "" {
			return title
		}
	}
	if title := cleanText(metas["og:title"]); title != "" {
		return title
	}
	if m := h1Pattern.FindStringSubmatch(body); m != nil {
		if title := cleanText(m[1]); title != "" {
			return title
		}
	}
	return DefaultTitle
}

func descriptionFrom(body string, metas map[string]string) string {
	if desc := cleanText(metas["og:description"]); desc != "" {
		return desc
	}
	if desc := cleanText(metas["description"]); desc != "" {
		return desc
	}
	for _, m := range paragraphPattern.FindAllStringSubmatch(body, -1) {
		text := cleanText(m[1])
		if utf8.RuneCountInString(text) > minParagraphRunes {
			return truncateRunes(text, maxParagraphRunes)
		}
	}
	return DefaultDescription
}

func imageFrom(body string, metas map[string]string) string {
	for _, key := range []string{"og:image", "twitter:image"} {
		if image := strings.TrimSpace(html.UnescapeString(metas[key])); image != "" {
			return image
		}
	}
	for _, tag := range imgPattern.FindAllString(body, -1) {
		src := strings.TrimSpace(html.UnescapeString(attributes(tag)["src"]))
		if isAbsoluteWebURL(src) {
			return src
		}
	}
	return ""
}

func iconFrom(body, origin string) string {
	for _, tag := range linkPattern.FindAllString(body, -1) {
		attrs := attributes(tag)
		if !hasIconRel(attrs["rel"]) {
			continue
		}
		href := strings.TrimSpace(html.UnescapeString(attrs["href"]))
		if href == "" {
			continue
		}
		if resolved := resolveAgainst(origin, href); resolved != "" {
			return resolved
		}
	}
	if origin == "" {
		return ""
	}
	return origin + faviconPath
}

// collectMeta maps the first content value seen for each property/name key.
func collectMeta(body string) map[string]string {
	metas := make(map[string]string)
	for _, tag := range metaPattern.FindAllString(body, -1) {
		attrs := attributes(tag)
		content, ok := attrs["content"]
		if !ok {
			continue
		}
		for _, keyAttr := range []string{"property", "name"} {
			key := strings.ToLower(strings.TrimSpace(attrs[keyAttr]))
			if key == "" {
				continue
			}
			if _, seen := metas[key]; !seen {
				metas[key] = content
			}
		}
	}
	return metas
}

// attributes parses the attributes of a single start tag. Names are lowercased;
// the first occurrence of a name wins.
func attributes(tag string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(tag, -1) {
		name := strings.ToLower(m[1])
		if _, seen := attrs[name]; seen {
			continue
		}
		attrs[name] = m[2] + m[3] + m[4]
	}
	return attrs
}

func hasIconRel(rel string) bool {
	for _, token := range strings.Fields(strings.ToLower(rel)) {
		if token == "icon" {
			return true
		}
	}
	return false
}

func resolveAgainst(origin, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		if isAbsoluteWebURL(href) {
			return ref.String()
		}
		return ""
	}
	if origin == "" {
		return ""
	}
	base, err := url.Parse(origin + "/")
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func isAbsoluteWebURL(raw string) bool {
	if raw == "" {
		return false
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return scheme == "http" || scheme == "https"
}

// CleanText strips markup from raw, decodes entities and collapses whitespace.
func CleanText(raw string) string {
	return cleanText(raw)
}

// Truncate shortens s to at most limit runes.
func Truncate(s string, limit int) string {
	return truncateRunes(s, limit)
}

func cleanText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	stripped := stripPolicy.Sanitize(raw)
	return strings.Join(strings.Fields(html.UnescapeString(stripped)), " ")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
