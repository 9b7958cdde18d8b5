package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/lake-forcing-etl/internal/domain"
	"github.com/couchcryptid/lake-forcing-etl/internal/observability"
	"github.com/google/uuid"
)

// RetryPolicy bounds how often a failed boundary run is retried within one cycle.
type RetryPolicy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// DefaultRetryPolicy retries twice, starting at 30s and capping at 5m.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 30 * time.Second, MaxBackoff: 5 * time.Minute}

// Status summarizes the most recent forcing cycle.
type Status struct {
	RunID      string          `json:"run_id,omitempty"`
	Start      time.Time       `json:"start,omitzero"`
	FinishedAt time.Time       `json:"finished_at,omitzero"`
	Boundary   *BoundaryResult `json:"boundary,omitempty"`
	Profile    *ProfileResult  `json:"profile,omitempty"`

	BoundaryError string `json:"boundary_error,omitempty"`
	ProfileError  string `json:"profile_error,omitempty"`
}

// Pipeline runs the boundary and profile pipelines as one forcing cycle.
type Pipeline struct {
	boundary *BoundaryPipeline
	profile  *ProfilePipeline
	lookback time.Duration
	retry    RetryPolicy
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool

	// Serializes cycles so a slow run and a scheduled tick never overlap.
	mu sync.Mutex

	statusMu sync.RWMutex
	status   Status
}

// New creates a Pipeline. The simulation start of each cycle is lookback
// before now, truncated to midnight UTC.
func New(boundary *BoundaryPipeline, profile *ProfilePipeline, lookback time.Duration, retry RetryPolicy, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	return &Pipeline{
		boundary: boundary,
		profile:  profile,
		lookback: lookback,
		retry:    retry,
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckReadiness returns nil once a boundary file has been written,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no boundary file written yet")
	}
	return nil
}

// Status returns a copy of the last cycle's summary.
func (p *Pipeline) Status() Status {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	return p.status
}

func (p *Pipeline) setStatus(s Status) {
	p.statusMu.Lock()
	p.status = s
	p.statusMu.Unlock()
}

// Start returns the simulation start for a cycle beginning at now.
func (p *Pipeline) Start(now time.Time) time.Time {
	return now.UTC().Add(-p.lookback).Truncate(24 * time.Hour)
}

// RunOnce executes one forcing cycle. The profile pipeline runs whatever the
// boundary outcome; a failed profile run is logged and keeps the previous init
// file. The returned error is the boundary error, if any.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	runID := uuid.NewString()
	start := p.Start(domain.Now())
	logger := p.logger.With("run_id", runID)
	logger.Info("forcing cycle started", "start", start)

	status := Status{RunID: runID, Start: start}
	defer func() {
		status.FinishedAt = domain.Now()
		p.setStatus(status)
	}()

	boundary, boundaryErr := p.runBoundary(ctx, runID, start)
	if boundaryErr != nil {
		status.BoundaryError = boundaryErr.Error()
		if ctx.Err() != nil {
			return boundaryErr
		}
		logger.Error("boundary run failed", "error", boundaryErr)
	} else {
		status.Boundary = &boundary
		p.ready.Store(true)
	}

	profile, err := p.runProfile(ctx, runID, start)
	switch {
	case err != nil && ctx.Err() != nil:
		status.ProfileError = ctx.Err().Error()
		return ctx.Err()
	case err != nil:
		status.ProfileError = err.Error()
		logger.Error("profile run failed, keeping previous init file", "error", err)
	default:
		status.Profile = &profile
	}
	return boundaryErr
}

func (p *Pipeline) runBoundary(ctx context.Context, runID string, start time.Time) (BoundaryResult, error) {
	backoff := p.retry.Backoff
	var err error
	for attempt := 1; attempt <= p.retry.Attempts; attempt++ {
		began := time.Now()
		var res BoundaryResult
		res, err = p.boundary.Run(ctx, runID, start)
		p.metrics.RunDuration.WithLabelValues("boundary").Observe(time.Since(began).Seconds())
		if err == nil {
			p.metrics.LastSuccess.WithLabelValues("boundary").Set(float64(domain.Now().Unix()))
			return res, nil
		}
		p.metrics.RunFailures.WithLabelValues("boundary").Inc()
		if ctx.Err() != nil {
			return BoundaryResult{}, ctx.Err()
		}
		if !errors.Is(err, domain.ErrFeedUnavailable) || attempt == p.retry.Attempts {
			break
		}
		p.logger.Warn("boundary run failed, retrying",
			"run_id", runID, "attempt", attempt, "backoff", backoff, "error", err)
		if !sleepWithContext(ctx, backoff) {
			return BoundaryResult{}, ctx.Err()
		}
		backoff = nextBackoff(backoff, p.retry.MaxBackoff)
	}
	return BoundaryResult{}, fmt.Errorf("boundary run %s: %w", runID, err)
}

func (p *Pipeline) runProfile(ctx context.Context, runID string, start time.Time) (ProfileResult, error) {
	began := time.Now()
	res, err := p.profile.Run(ctx, runID, start)
	p.metrics.RunDuration.WithLabelValues("profile").Observe(time.Since(began).Seconds())
	if err != nil {
		p.metrics.RunFailures.WithLabelValues("profile").Inc()
		return ProfileResult{}, err
	}
	p.metrics.LastSuccess.WithLabelValues("profile").Set(float64(domain.Now().Unix()))
	return res, nil
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
