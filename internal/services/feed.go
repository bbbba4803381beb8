package services

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charlesng35/linkcard/internal/extract"
)

const feedSummaryRunes = 200

// ErrUnsupportedFeed indicates a document that is neither RSS nor Atom.
var ErrUnsupportedFeed = errors.New("feed: unsupported document")

// FeedItem is one post read from a friend's RSS or Atom feed.
type FeedItem struct {
	Title     string     `json:"title"`
	Link      string     `json:"link"`
	Summary   string     `json:"summary,omitempty"`
	Published *time.Time `json:"published,omitempty"`
}

type rssDocument struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	// RSS 1.0 places items beside the channel.
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Date        string `xml:"http://purl.org/dc/elements/1.1/ date"`
}

type atomDocument struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

var feedDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseFeed reads up to limit items from an RSS 2.0, RSS 1.0 or Atom
// document, newest first. The body must already be UTF-8.
func ParseFeed(body []byte, limit int) ([]FeedItem, error) {
	root, err := rootElement(body)
	if err != nil {
		return nil, err
	}

	var items []FeedItem
	switch root {
	case "rss", "RDF":
		var doc rssDocument
		if err := decodeFeed(body, &doc); err != nil {
			return nil, err
		}
		for _, item := range append(doc.Channel.Items, doc.Items...) {
			link := strings.TrimSpace(item.Link)
			if link == "" && strings.HasPrefix(item.GUID, "http") {
				link = strings.TrimSpace(item.GUID)
			}
			date := item.PubDate
			if date == "" {
				date = item.Date
			}
			items = append(items, newFeedItem(item.Title, link, item.Description, date))
		}
	case "feed":
		var doc atomDocument
		if err := decodeFeed(body, &doc); err != nil {
			return nil, err
		}
		for _, entry := range doc.Entries {
			summary := entry.Summary
			if summary == "" {
				summary = entry.Content
			}
			date := entry.Published
			if date == "" {
				date = entry.Updated
			}
			items = append(items, newFeedItem(entry.Title, atomAlternate(entry.Links), summary, date))
		}
	default:
		return nil, ErrUnsupportedFeed
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Published, items[j].Published
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func newFeedItem(title, link, summary, date string) FeedItem {
	item := FeedItem{
		Title:   extract.CleanText(title),
		Link:    strings.TrimSpace(link),
		Summary: extract.Truncate(extract.CleanText(summary), feedSummaryRunes),
	}
	if item.Title == "" {
		item.Title = item.Link
	}
	if published, ok := parseFeedDate(date); ok {
		item.Published = &published
	}
	return item
}

func atomAlternate(links []atomLink) string {
	for _, link := range links {
		if link.Rel == "" || link.Rel == "alternate" {
			return strings.TrimSpace(link.Href)
		}
	}
	if len(links) > 0 {
		return strings.TrimSpace(links[0].Href)
	}
	return ""
}

func parseFeedDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range feedDateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

func newFeedDecoder(body []byte) *xml.Decoder {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.Strict = false
	decoder.Entity = xml.HTMLEntity
	// The fetcher has already converted the body to UTF-8, so any declared
	// encoding is ignored.
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return decoder
}

func decodeFeed(body []byte, v interface{}) error {
	return newFeedDecoder(body).Decode(v)
}

func rootElement(body []byte) (string, error) {
	decoder := newFeedDecoder(body)
	for {
		token, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", ErrUnsupportedFeed
			}
			return "", err
		}
		if start, ok := token.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}
