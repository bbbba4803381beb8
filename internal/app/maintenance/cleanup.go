package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/linkcard/internal/cache"
	"github.com/charlesng35/linkcard/internal/monitoring"
	"github.com/charlesng35/linkcard/internal/services"
	"github.com/charlesng35/linkcard/pkg/logger"
)

// Job names reported to monitoring.
const (
	JobCachePurge  = "cache_purge"
	JobClickPrune  = "click_prune"
	JobFeedRefresh = "feed_refresh"
)

const (
	defaultCacheSpec     = "@hourly"
	defaultClickSpec     = "@daily"
	defaultFeedSpec      = "@every 6h"
	defaultRetentionDays = 365
	defaultJobTimeout    = 5 * time.Minute
)

// ClickPruner removes clicks past their retention window.
type ClickPruner interface {
	PruneOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// FeedRefresher re-reads every friend-link feed.
type FeedRefresher interface {
	RefreshFeeds(ctx context.Context) (services.FeedRefreshResult, error)
}

// RunRecorder receives the outcome of every job run.
type RunRecorder interface {
	RecordMaintenanceRun(job, result, message string, duration time.Duration)
}

// Cleaner schedules cache garbage collection, click retention and friend-link
// feed refreshes. A nil dependency disables the matching job.
type Cleaner struct {
	cache     cache.Purger
	clicks    ClickPruner
	feeds     FeedRefresher
	recorder  RunRecorder
	cron      *cron.Cron
	log       *zap.Logger
	retention int
	timeout   time.Duration

	cacheSchedule string
	clickSchedule string
	feedSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithRecorder routes run outcomes to the supplied recorder instead of the
// process-wide monitoring module.
func WithRecorder(r RunRecorder) Option {
	return func(cleaner *Cleaner) {
		if r != nil {
			cleaner.recorder = r
		}
	}
}

// WithClickRetentionDays adjusts how long clicks are kept. Zero disables pruning.
func WithClickRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days >= 0 {
			cleaner.retention = days
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache purging.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// WithClickSchedule overrides the cron specification for click retention.
func WithClickSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.clickSchedule = spec
		}
	}
}

// WithFeedSchedule overrides the cron specification for feed refreshes.
func WithFeedSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.feedSchedule = spec
		}
	}
}

// WithJobTimeout bounds each scheduled run.
func WithJobTimeout(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.timeout = d
		}
	}
}

// NewCleaner constructs a Cleaner. The store participates only when it
// implements cache.Purger; redis and go-cache expire entries on their own.
func NewCleaner(store cache.Store, clicks ClickPruner, feeds FeedRefresher, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		clicks:        clicks,
		feeds:         feeds,
		retention:     defaultRetentionDays,
		timeout:       defaultJobTimeout,
		cacheSchedule: defaultCacheSpec,
		clickSchedule: defaultClickSpec,
		feedSchedule:  defaultFeedSpec,
		log:           logger.WithModule("maintenance"),
	}
	if purger, ok := store.(cache.Purger); ok {
		cleaner.cache = purger
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	if cleaner.recorder == nil {
		cleaner.recorder = monitoring.CurrentModule()
	}
	return cleaner
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) (string, error)
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.cache != nil {
		jobs = append(jobs, job{name: JobCachePurge, schedule: c.cacheSchedule, run: c.purgeCache})
	}
	if c.clicks != nil && c.retention > 0 {
		jobs = append(jobs, job{name: JobClickPrune, schedule: c.clickSchedule, run: c.pruneClicks})
	}
	if c.feeds != nil {
		jobs = append(jobs, job{name: JobFeedRefresh, schedule: c.feedSchedule, run: c.refreshFeeds})
	}
	return jobs
}

// Start registers the enabled jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		j := j
		if registry, ok := c.recorder.(interface{ Jobs() *monitoring.JobRegistry }); ok {
			registry.Jobs().Register(j.name)
		}
		if _, err := c.cron.AddFunc(j.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			_ = c.execute(ctx, j)
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", j.name, err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every enabled job sequentially and aggregates failures.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		errs = multierr.Append(errs, c.execute(ctx, j))
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	start := time.Now()
	summary, err := j.run(ctx)
	duration := time.Since(start)

	if err != nil {
		c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
		c.recorder.RecordMaintenanceRun(j.name, monitoring.ResultFailure, err.Error(), duration)
		return fmt.Errorf("%s: %w", j.name, err)
	}

	c.log.Debug("maintenance job completed",
		zap.String("job", j.name),
		zap.String("summary", summary),
		zap.Duration("duration", duration),
	)
	c.recorder.RecordMaintenanceRun(j.name, monitoring.ResultSuccess, "", duration)
	return nil
}

func (c *Cleaner) purgeCache(ctx context.Context) (string, error) {
	removed, err := c.cache.PurgeExpired(ctx)
	return fmt.Sprintf("removed %d expired entries", removed), err
}

func (c *Cleaner) pruneClicks(ctx context.Context) (string, error) {
	removed, err := c.clicks.PruneOlderThan(ctx, c.retention)
	return fmt.Sprintf("removed %d clicks", removed), err
}

func (c *Cleaner) refreshFeeds(ctx context.Context) (string, error) {
	result, err := c.feeds.RefreshFeeds(ctx)
	return fmt.Sprintf("refreshed %d feeds, %d failed", result.Refreshed, result.Failed), err
}
