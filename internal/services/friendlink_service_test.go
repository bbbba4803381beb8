package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/linkcard/internal/cache"
	"github.com/charlesng35/linkcard/internal/database/testutil"
	"github.com/charlesng35/linkcard/internal/fetch"
	"github.com/charlesng35/linkcard/internal/models"
)

type friendLinkFixture struct {
	store   *cache.MemoryStore
	fetcher *fakeFetcher
	svc     *FriendLinkService
}

func newFriendLinkFixture(t *testing.T) *friendLinkFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewMemoryStore(time.Minute)
	fetcher := newFakeFetcher()

	svc, err := NewFriendLinkService(db, store, fetcher, FriendLinkConfig{ItemsPerFeed: 2, FeedConcurrency: 2})
	require.NoError(t, err)
	return &friendLinkFixture{store: store, fetcher: fetcher, svc: svc}
}

func boolPtr(v bool) *bool       { return &v }
func stringPtr(v string) *string { return &v }

func TestFriendLinkCreateValidatesAndDefaults(t *testing.T) {
	fx := newFriendLinkFixture(t)
	ctx := context.Background()

	link, err := fx.svc.Create(ctx, FriendLinkInput{
		Name:   "  Alice  ",
		URL:    "HTTPS://Alice.example.com/#about",
		RSSURL: "https://alice.example.com/feed.xml",
	})
	require.NoError(t, err)
	require.NotEmpty(t, link.ID)
	require.Equal(t, "Alice", link.Name)
	require.Equal(t, "https://alice.example.com/", link.URL)
	require.True(t, link.Visible)

	_, err = fx.svc.Create(ctx, FriendLinkInput{Name: "Dup", URL: "https://alice.example.com/"})
	require.ErrorIs(t, err, ErrFriendLinkExists)

	_, err = fx.svc.Create(ctx, FriendLinkInput{Name: "Bad", URL: "mailto:alice@example.com"})
	require.ErrorIs(t, err, ErrInvalidURL)

	_, err = fx.svc.Create(ctx, FriendLinkInput{Name: "Bad feed", URL: "https://b.example.com", RSSURL: "feed.xml"})
	require.ErrorIs(t, err, ErrInvalidURL)

	_, err = fx.svc.Create(ctx, FriendLinkInput{Name: " ", URL: "https://c.example.com"})
	require.Error(t, err)
}

func TestFriendLinkListOrdersAndHides(t *testing.T) {
	fx := newFriendLinkFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Create(ctx, FriendLinkInput{Name: "zed", URL: "https://z.example.com", SortOrder: 1})
	require.NoError(t, err)
	_, err = fx.svc.Create(ctx, FriendLinkInput{Name: "Bob", URL: "https://b.example.com", SortOrder: 1})
	require.NoError(t, err)
	_, err = fx.svc.Create(ctx, FriendLinkInput{Name: "First", URL: "https://f.example.com", SortOrder: 0})
	require.NoError(t, err)
	_, err = fx.svc.Create(ctx, FriendLinkInput{Name: "Hidden", URL: "https://h.example.com", Visible: boolPtr(false)})
	require.NoError(t, err)

	visible, err := fx.svc.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, visible, 3)
	require.Equal(t, []string{"First", "Bob", "zed"}, []string{visible[0].Name, visible[1].Name, visible[2].Name})

	all, err := fx.svc.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 4)
}

func TestFriendLinkUpdateAndDelete(t *testing.T) {
	fx := newFriendLinkFixture(t)
	ctx := context.Background()

	link, err := fx.svc.Create(ctx, FriendLinkInput{Name: "Alice", URL: "https://alice.example.com", RSSURL: "https://alice.example.com/feed"})
	require.NoError(t, err)
	other, err := fx.svc.Create(ctx, FriendLinkInput{Name: "Bob", URL: "https://bob.example.com"})
	require.NoError(t, err)

	require.NoError(t, fx.store.Set(ctx, feedKey(link.ID), []byte("[]"), time.Hour))

	updated, err := fx.svc.Update(ctx, link.ID, UpdateFriendLinkInput{
		Name:    stringPtr("Alice B."),
		RSSURL:  stringPtr("https://alice.example.com/atom.xml"),
		Visible: boolPtr(false),
	})
	require.NoError(t, err)
	require.Equal(t, "Alice B.", updated.Name)
	require.Equal(t, "https://alice.example.com/atom.xml", updated.RSSURL)
	require.False(t, updated.Visible)

	_, ok, err := fx.store.Get(ctx, feedKey(link.ID))
	require.NoError(t, err)
	require.False(t, ok)

	_, err = fx.svc.Update(ctx, other.ID, UpdateFriendLinkInput{URL: stringPtr("https://alice.example.com")})
	require.ErrorIs(t, err, ErrFriendLinkExists)

	_, err = fx.svc.Update(ctx, "missing", UpdateFriendLinkInput{})
	require.ErrorIs(t, err, ErrFriendLinkNotFound)

	require.NoError(t, fx.svc.Delete(ctx, link.ID))
	_, err = fx.svc.Get(ctx, link.ID)
	require.ErrorIs(t, err, ErrFriendLinkNotFound)
}

func TestRefreshFeedsCachesItemsAndIsolatesFailures(t *testing.T) {
	fx := newFriendLinkFixture(t)
	ctx := context.Background()

	good, err := fx.svc.Create(ctx, FriendLinkInput{Name: "Good", URL: "https://good.example.com", RSSURL: "https://good.example.com/rss"})
	require.NoError(t, err)
	bad, err := fx.svc.Create(ctx, FriendLinkInput{Name: "Bad", URL: "https://bad.example.com", RSSURL: "https://bad.example.com/rss"})
	require.NoError(t, err)
	_, err = fx.svc.Create(ctx, FriendLinkInput{Name: "Hidden", URL: "https://hidden.example.com", RSSURL: "https://hidden.example.com/rss", Visible: boolPtr(false)})
	require.NoError(t, err)
	_, err = fx.svc.Create(ctx, FriendLinkInput{Name: "No feed", URL: "https://nofeed.example.com"})
	require.NoError(t, err)

	fx.fetcher.Serve("https://good.example.com/rss", rss2Feed)
	fx.fetcher.Fail("https://bad.example.com/rss", &fetch.Error{Kind: fetch.KindTransport, Err: errors.New("timeout")})

	result, err := fx.svc.RefreshFeeds(ctx)
	require.NoError(t, err)
	require.Equal(t, FeedRefreshResult{Refreshed: 1, Failed: 1}, result)
	require.Zero(t, fx.fetcher.Calls("https://hidden.example.com/rss"))

	payload, ok, err := fx.store.Get(ctx, feedKey(good.ID))
	require.NoError(t, err)
	require.True(t, ok)
	var items []FeedItem
	require.NoError(t, json.Unmarshal(payload, &items))
	require.Len(t, items, 2)
	require.Equal(t, "Newer & better", items[0].Title)

	stored, err := fx.svc.Get(ctx, good.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastFetchedAt)

	failed, err := fx.svc.Get(ctx, bad.ID)
	require.NoError(t, err)
	require.Nil(t, failed.LastFetchedAt)
}

func TestLatestPostsReadsThrough(t *testing.T) {
	fx := newFriendLinkFixture(t)
	ctx := context.Background()

	link, err := fx.svc.Create(ctx, FriendLinkInput{Name: "Atom", URL: "https://atom.example.com", RSSURL: "https://atom.example.com/feed"})
	require.NoError(t, err)
	fx.fetcher.Serve("https://atom.example.com/feed", atomFeed)

	items, err := fx.svc.LatestPosts(ctx, link.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "Second", items[0].Title)

	items, err = fx.svc.LatestPosts(ctx, link.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 1, fx.fetcher.Calls("https://atom.example.com/feed"))
}

func TestLatestPostsDegradesToEmpty(t *testing.T) {
	fx := newFriendLinkFixture(t)
	ctx := context.Background()

	broken, err := fx.svc.Create(ctx, FriendLinkInput{Name: "Broken", URL: "https://broken.example.com", RSSURL: "https://broken.example.com/feed"})
	require.NoError(t, err)
	fx.fetcher.Serve("https://broken.example.com/feed", "<html>nope</html>")

	items, err := fx.svc.LatestPosts(ctx, broken.ID)
	require.NoError(t, err)
	require.Empty(t, items)

	plain, err := fx.svc.Create(ctx, FriendLinkInput{Name: "Plain", URL: "https://plain.example.com"})
	require.NoError(t, err)
	items, err = fx.svc.LatestPosts(ctx, plain.ID)
	require.NoError(t, err)
	require.Empty(t, items)

	_, err = fx.svc.LatestPosts(ctx, "missing")
	require.ErrorIs(t, err, ErrFriendLinkNotFound)

	var count int64
	require.NoError(t, fx.svc.db.Model(&models.FriendLink{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}
