package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const rss2Feed = `<?xml version="1.0" encoding="ISO-8859-1"?>
<rss version="2.0">
<channel>
  <title>Friend Blog</title>
  <item>
    <title>Older post</title>
    <link>https://friend.example.com/older</link>
    <description>Plain summary</description>
    <pubDate>Mon, 01 Jan 2024 10:00:00 +0000</pubDate>
  </item>
  <item>
    <title><![CDATA[Newer &amp; better]]></title>
    <guid>https://friend.example.com/newer</guid>
    <description><![CDATA[<p>Some <b>bold</b> text&nbsp;here</p>]]></description>
    <pubDate>Tue, 02 Jan 2024 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Undated</title>
    <link>https://friend.example.com/undated</link>
  </item>
</channel>
</rss>`

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Friend</title>
  <entry>
    <title>First</title>
    <link rel="self" href="https://atom.example.com/first.xml"/>
    <link rel="alternate" href="https://atom.example.com/first"/>
    <content type="html">&lt;p&gt;Content body&lt;/p&gt;</content>
    <updated>2024-03-01T08:00:00Z</updated>
  </entry>
  <entry>
    <title>Second</title>
    <link href="https://atom.example.com/second"/>
    <summary>Second summary</summary>
    <published>2024-03-05T08:00:00+02:00</published>
  </entry>
</feed>`

const rdfFeed = `<?xml version="1.0"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns="http://purl.org/rss/1.0/" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel><title>RDF</title></channel>
  <item>
    <title>RDF item</title>
    <link>https://rdf.example.com/item</link>
    <dc:date>2023-12-24T12:00:00Z</dc:date>
  </item>
</rdf:RDF>`

func TestParseFeedRSS2(t *testing.T) {
	items, err := ParseFeed([]byte(rss2Feed), 10)
	require.NoError(t, err)
	require.Len(t, items, 3)

	require.Equal(t, "Newer & better", items[0].Title)
	require.Equal(t, "https://friend.example.com/newer", items[0].Link)
	require.Equal(t, "Some bold text here", items[0].Summary)
	require.NotNil(t, items[0].Published)
	require.True(t, items[0].Published.Equal(time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)))

	require.Equal(t, "Older post", items[1].Title)
	require.Equal(t, "Plain summary", items[1].Summary)

	require.Equal(t, "Undated", items[2].Title)
	require.Nil(t, items[2].Published)
}

func TestParseFeedAtom(t *testing.T) {
	items, err := ParseFeed([]byte(atomFeed), 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.Equal(t, "Second", items[0].Title)
	require.Equal(t, "https://atom.example.com/second", items[0].Link)
	require.Equal(t, "Second summary", items[0].Summary)
	require.True(t, items[0].Published.Equal(time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC)))

	require.Equal(t, "https://atom.example.com/first", items[1].Link)
	require.Equal(t, "Content body", items[1].Summary)
}

func TestParseFeedRDF(t *testing.T) {
	items, err := ParseFeed([]byte(rdfFeed), 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "RDF item", items[0].Title)
	require.NotNil(t, items[0].Published)
}

func TestParseFeedLimit(t *testing.T) {
	items, err := ParseFeed([]byte(rss2Feed), 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Newer & better", items[0].Title)
}

func TestParseFeedRejectsOtherDocuments(t *testing.T) {
	_, err := ParseFeed([]byte(`<html><body>not a feed</body></html>`), 5)
	require.ErrorIs(t, err, ErrUnsupportedFeed)

	_, err = ParseFeed(nil, 5)
	require.ErrorIs(t, err, ErrUnsupportedFeed)
}
