package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/linkcard/internal/cache"
	"github.com/charlesng35/linkcard/internal/database/testutil"
	"github.com/charlesng35/linkcard/internal/fetch"
	"github.com/charlesng35/linkcard/internal/models"
)

type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]*fetch.Page
	errs   map[string]error
	calls  map[string]int
	onCall func(url string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: make(map[string]*fetch.Page),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) Serve(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = &fetch.Page{URL: url, StatusCode: 200, Body: []byte(body)}
}

func (f *fakeFetcher) ServeFrom(url, finalURL, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = &fetch.Page{URL: finalURL, StatusCode: 200, Body: []byte(body)}
}

func (f *fakeFetcher) Fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pages, url)
	f.errs[url] = err
}

func (f *fakeFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*fetch.Page, error) {
	f.mu.Lock()
	f.calls[url]++
	page, ok := f.pages[url]
	err := f.errs[url]
	hook := f.onCall
	f.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &fetch.Error{Kind: fetch.KindStatus, StatusCode: 404, URL: url}
	}
	copied := *page
	return &copied, nil
}

type staticSettings struct {
	settings CardSettings
	err      error
}

func (s staticSettings) CardSettings(context.Context) (CardSettings, error) {
	return s.settings, s.err
}

type cardFixture struct {
	db      *gorm.DB
	store   *cache.MemoryStore
	fetcher *fakeFetcher
	svc     *CardService
}

func newCardFixture(t *testing.T) *cardFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewMemoryStore(time.Minute)
	fetcher := newFakeFetcher()

	svc, err := NewCardService(db, store, fetcher, staticSettings{settings: DefaultCardSettings()})
	require.NoError(t, err)

	return &cardFixture{db: db, store: store, fetcher: fetcher, svc: svc}
}

func seedCard(t *testing.T, db *gorm.DB, url string) *models.Card {
	t.Helper()

	card := &models.Card{
		URL:         url,
		Title:       "Seeded",
		Description: "Seeded card",
		Status:      models.CardStatusActive,
	}
	require.NoError(t, db.Create(card).Error)
	return card
}
