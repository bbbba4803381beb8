package monitoring

import (
	"sort"
	"sync"
	"time"
)

// Maintenance run results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// JobSummary is the externally visible state of one maintenance job.
type JobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	LastSuccessAt       time.Time     `json:"last_success_at,omitempty"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	TotalRuns           uint64        `json:"total_runs"`
}

// JobRegistry keeps per-job run history in memory.
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*JobSummary
	now  func() time.Time
}

// NewJobRegistry constructs an empty registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*JobSummary), now: time.Now}
}

// Register makes a job visible before its first run.
func (r *JobRegistry) Register(job string) {
	if r == nil || job == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job]; !ok {
		r.jobs[job] = &JobSummary{Job: job}
	}
}

// Record stores the outcome of a run.
func (r *JobRegistry) Record(job, result, message string, duration time.Duration) {
	if r == nil || job == "" {
		return
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.jobs[job]
	if !ok {
		entry = &JobSummary{Job: job}
		r.jobs[job] = entry
	}
	entry.LastStatus = result
	entry.LastRunAt = now
	entry.LastDuration = duration
	entry.LastError = message
	entry.TotalRuns++

	if result == ResultSuccess {
		entry.ConsecutiveFailures = 0
		entry.LastSuccessAt = now
		entry.LastError = ""
		return
	}
	entry.ConsecutiveFailures++
}

// Snapshot returns a copy of every job, ordered by name.
func (r *JobRegistry) Snapshot() []JobSummary {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	out := make([]JobSummary, 0, len(r.jobs))
	for _, entry := range r.jobs {
		out = append(out, *entry)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}
