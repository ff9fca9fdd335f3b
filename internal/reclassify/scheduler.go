// Package reclassify keeps classified articles consistent with the live
// rule set: every rule mutation schedules a sweep that re-runs
// classification over articles whose last pass used an older version.
package reclassify

import (
	"context"
	"time"

	"github.com/orbitwire/newsclean/internal/logging"
	"github.com/orbitwire/newsclean/internal/processor"
	"github.com/orbitwire/newsclean/internal/rules"
	"github.com/orbitwire/newsclean/internal/storage"
	"github.com/orbitwire/newsclean/internal/telemetry"
)

const (
	// DefaultDebounce coalesces bursts of rule edits into one sweep.
	DefaultDebounce = 500 * time.Millisecond
	// DefaultJobTTL drops a sweep that waited too long behind earlier
	// work; the next rule change reschedules it.
	DefaultJobTTL = 10 * time.Minute
)

// Scheduler listens for rule-set changes and runs reclassification
// sweeps. Change signals are coalesced, so any burst of edits costs one
// sweep at the newest version. A job captured for version N is skipped
// when version N+1 lands before the sweep starts; the queued signal for
// the newer version takes over.
type Scheduler struct {
	rules     *rules.Store
	store     storage.ArticleStore
	batch     *processor.BatchProcessor
	debounce  time.Duration
	jobTTL    time.Duration
	telemetry *telemetry.Provider
	logger    logging.Logger
}

// New creates a scheduler. tel may be nil.
func New(
	ruleStore *rules.Store,
	store storage.ArticleStore,
	batch *processor.BatchProcessor,
	debounce, jobTTL time.Duration,
	tel *telemetry.Provider,
	logger logging.Logger,
) *Scheduler {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if jobTTL <= 0 {
		jobTTL = DefaultJobTTL
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		rules:     ruleStore,
		store:     store,
		batch:     batch,
		debounce:  debounce,
		jobTTL:    jobTTL,
		telemetry: tel,
		logger:    logger,
	}
}

// Run blocks, processing rule-change signals until ctx ends. Meant to be
// launched on its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("reclassification scheduler started",
		logging.Duration("debounce", s.debounce),
		logging.Duration("job_ttl", s.jobTTL))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reclassification scheduler stopped")
			return
		case <-s.rules.Changes():
		}

		version := s.rules.Version()
		// The job's age runs from the mutation that queued the signal,
		// not from when this loop got around to it; a signal can sit in
		// the channel behind a long-running sweep.
		created := s.rules.LastChanged()
		if created.IsZero() {
			created = time.Now()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.debounce):
		}

		// A newer version means another signal is already queued; let
		// that one drive the sweep instead of running a stale job.
		if current := s.rules.Version(); current > version {
			s.telemetry.RecordReclassSuperseded()
			s.logger.Debug("sweep superseded",
				logging.Int64("job_version", version),
				logging.Int64("current_version", current))
			continue
		}

		if time.Since(created) > s.jobTTL {
			s.telemetry.RecordReclassExpired()
			s.logger.Warn("sweep expired before start",
				logging.Int64("job_version", version),
				logging.Duration("age", time.Since(created)))
			continue
		}

		s.Sweep(ctx, version)
	}
}

// Sweep reclassifies every article whose last pass used a rule version
// older than the given one. Per-article failures are logged by the batch
// processor and do not stop the sweep.
func (s *Scheduler) Sweep(ctx context.Context, version int64) {
	start := time.Now()

	ids, err := s.store.ListClassifiedBefore(ctx, version)
	if err != nil {
		s.logger.Error("list stale articles failed",
			logging.Int64("version", version),
			logging.Error(err))
		return
	}

	s.telemetry.SetRuleSet(version, s.rules.Snapshot().EnabledCount())

	if len(ids) == 0 {
		s.logger.Debug("no stale articles", logging.Int64("version", version))
		return
	}

	s.batch.Process(ctx, ids)
	s.telemetry.RecordReclassRun(len(ids), time.Since(start))

	s.logger.Info("reclassification sweep complete",
		logging.Int64("version", version),
		logging.Int("articles", len(ids)),
		logging.Duration("duration", time.Since(start)))
}
