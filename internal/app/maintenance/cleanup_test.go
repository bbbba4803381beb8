package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/charlesng35/linkcard/internal/cache"
	testutil "github.com/charlesng35/linkcard/internal/database/testutil"
	"github.com/charlesng35/linkcard/internal/models"
	"github.com/charlesng35/linkcard/internal/monitoring"
	"github.com/charlesng35/linkcard/internal/services"
)

type stubFeeds struct {
	calls  int
	result services.FeedRefreshResult
	err    error
}

func (s *stubFeeds) RefreshFeeds(context.Context) (services.FeedRefreshResult, error) {
	s.calls++
	return s.result, s.err
}

type run struct {
	job    string
	result string
	msg    string
}

type recorder struct {
	mu   sync.Mutex
	runs []run
}

func (r *recorder) RecordMaintenanceRun(job, result, message string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run{job: job, result: result, msg: message})
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Now().UTC()

	require.NoError(t, db.Create(&models.CacheEntry{Key: "card:expired", Value: []byte("x"), ExpiresAt: now.Add(-time.Minute)}).Error)
	require.NoError(t, db.Create(&models.CacheEntry{Key: "card:live", Value: []byte("y"), ExpiresAt: now.Add(time.Hour)}).Error)

	card := &models.Card{URL: "https://example.com/", Title: "Example"}
	require.NoError(t, db.Create(card).Error)
	require.NoError(t, db.Create(&models.Click{CardID: card.ID, ClickedAt: now.AddDate(0, 0, -40)}).Error)
	require.NoError(t, db.Create(&models.Click{CardID: card.ID, ClickedAt: now.Add(-time.Hour)}).Error)

	clicks, err := services.NewClickService(db)
	require.NoError(t, err)
	feeds := &stubFeeds{result: services.FeedRefreshResult{Refreshed: 2}}
	rec := &recorder{}

	c := NewCleaner(cache.NewDatabaseStore(db), clicks, feeds,
		WithClickRetentionDays(30),
		WithRecorder(rec),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)
	require.NoError(t, c.RunOnce(context.Background()))

	var entries []models.CacheEntry
	require.NoError(t, db.Find(&entries).Error)
	require.Len(t, entries, 1)
	require.Equal(t, "card:live", entries[0].Key)

	var clickCount int64
	require.NoError(t, db.Model(&models.Click{}).Count(&clickCount).Error)
	require.Equal(t, int64(1), clickCount)

	require.Equal(t, 1, feeds.calls)
	require.Equal(t, []run{
		{job: JobCachePurge, result: monitoring.ResultSuccess},
		{job: JobClickPrune, result: monitoring.ResultSuccess},
		{job: JobFeedRefresh, result: monitoring.ResultSuccess},
	}, rec.runs)
}

func TestCleanerAggregatesFailures(t *testing.T) {
	feeds := &stubFeeds{err: errors.New("context deadline exceeded")}
	rec := &recorder{}

	c := NewCleaner(nil, nil, feeds, WithRecorder(rec))
	err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "feed_refresh")

	require.Len(t, rec.runs, 1)
	require.Equal(t, monitoring.ResultFailure, rec.runs[0].result)
	require.Equal(t, "context deadline exceeded", rec.runs[0].msg)
}

func TestCleanerSkipsDisabledJobs(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clicks, err := services.NewClickService(db)
	require.NoError(t, err)

	c := NewCleaner(nil, clicks, nil, WithClickRetentionDays(0), WithRecorder(&recorder{}))
	require.Empty(t, c.jobs())
	require.NoError(t, c.Start())
	require.NoError(t, c.RunOnce(context.Background()))
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	c := NewCleaner(nil, nil, &stubFeeds{}, WithFeedSchedule("not a schedule"), WithRecorder(&recorder{}))
	err := c.Start()
	require.Error(t, err)
	require.Contains(t, err.Error(), JobFeedRefresh)
}

func TestCleanerStartRegistersJobs(t *testing.T) {
	mod, err := monitoring.NewModule(monitoring.Options{})
	require.NoError(t, err)

	c := NewCleaner(cache.NewMemoryStore(time.Minute), nil, &stubFeeds{}, WithRecorder(mod))
	require.NoError(t, c.Start())
	<-c.Stop().Done()

	jobs := mod.Jobs().Snapshot()
	require.Len(t, jobs, 2)
	require.Equal(t, JobCachePurge, jobs[0].Job)
	require.Equal(t, JobFeedRefresh, jobs[1].Job)
	require.Zero(t, jobs[0].TotalRuns)
}

func TestCleanerStopReleasesScheduler(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewCleaner(nil, nil, &stubFeeds{}, WithRecorder(&recorder{}))
	require.NoError(t, c.Start())
	<-c.Stop().Done()
}
