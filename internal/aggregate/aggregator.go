// Package aggregate maintains the running classification totals: raw and
// cleaned counts, the per-tag breakdown, and the per-day cleaned-article
// trend. Counters are updated incrementally from classification events
// (a materialized view), with a full recompute from the article set as
// the consistency-repair escape hatch.
package aggregate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/orbitwire/newsclean/internal/domain"
	"github.com/orbitwire/newsclean/internal/logging"
)

const dateLayout = "2006-01-02"

// percentPrecision rounds tag percentages to two decimals.
const percentPrecision = 100

// Aggregator is the only writer of the aggregate counters. All deltas
// from one event are applied indivisibly under a single mutex, so a
// snapshot never observes a partially-applied event.
type Aggregator struct {
	mu sync.RWMutex

	seen         map[string]struct{} // article ids ever observed
	totalCleaned int
	tagCounts    map[string]int
	dayCounts    map[string]int // cleaned articles by created_at date

	logger logging.Logger
}

// New creates an empty aggregator.
func New(logger logging.Logger) *Aggregator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Aggregator{
		seen:      make(map[string]struct{}),
		tagCounts: make(map[string]int),
		dayCounts: make(map[string]int),
		logger:    logger,
	}
}

// RecordIngest counts a newly ingested article toward total_raw before
// its first classification pass.
func (a *Aggregator) RecordIngest(articleID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen[articleID] = struct{}{}
}

// Apply folds one classification event into the counters. Deltas are
// computed from the event's previous/new state, so replaying an event
// (or an idempotent reclassification) is a no-op.
func (a *Aggregator) Apply(ev *domain.ClassificationEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seen[ev.ArticleID] = struct{}{}

	wasCleaned := ev.PreviousStatus == domain.StatusCleaned
	isCleaned := ev.NewStatus == domain.StatusCleaned
	day := ev.CreatedAt.UTC().Format(dateLayout)

	switch {
	case isCleaned && !wasCleaned:
		a.totalCleaned++
		a.dayCounts[day]++
	case !isCleaned && wasCleaned:
		a.totalCleaned--
		a.dayCounts[day]--
		if a.dayCounts[day] <= 0 {
			delete(a.dayCounts, day)
		}
	}

	removed, added := ev.TagDelta()
	for _, t := range removed {
		a.tagCounts[t]--
		if a.tagCounts[t] <= 0 {
			delete(a.tagCounts, t)
		}
	}
	for _, t := range added {
		a.tagCounts[t]++
	}
}

// Snapshot returns a consistent point-in-time read of all totals. Tags
// are ordered by count descending, then tag ascending; percentages are
// relative to total_cleaned, 0 when nothing is cleaned yet.
func (a *Aggregator) Snapshot() domain.StatsSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() domain.StatsSnapshot {
	totalRaw := len(a.seen)

	tags := make([]domain.TagCount, 0, len(a.tagCounts))
	for tag, count := range a.tagCounts {
		percent := 0.0
		if a.totalCleaned > 0 {
			percent = math.Round(float64(count)/float64(a.totalCleaned)*100*percentPrecision) / percentPrecision
		}
		tags = append(tags, domain.TagCount{Tag: tag, Count: count, Percent: percent})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Tag < tags[j].Tag
	})

	uncleaned := totalRaw - a.totalCleaned
	if uncleaned < 0 {
		uncleaned = 0
	}

	return domain.StatsSnapshot{
		TotalRaw:     totalRaw,
		TotalCleaned: a.totalCleaned,
		Pie:          domain.Pie{Cleaned: a.totalCleaned, Uncleaned: uncleaned},
		Tags:         tags,
	}
}

// Trend buckets cleaned articles by created_at date over the trailing
// window ending today, contiguous and ascending: days with no articles
// report count 0 instead of being omitted.
func (a *Aggregator) Trend(windowDays int, now time.Time) []domain.TrendPoint {
	if windowDays <= 0 {
		return nil
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	start := now.UTC().AddDate(0, 0, -(windowDays - 1))
	points := make([]domain.TrendPoint, 0, windowDays)
	for i := 0; i < windowDays; i++ {
		day := start.AddDate(0, 0, i).Format(dateLayout)
		points = append(points, domain.TrendPoint{Date: day, Count: a.dayCounts[day]})
	}
	return points
}

// Recompute rebuilds every counter from scratch out of the full article
// set. The result equals the steady state reachable by replaying all
// classification events in causal order. Used for bootstrap and drift
// repair. Assumes no events are applied concurrently; when the article
// set has to be read live, use RecomputeFrom.
func (a *Aggregator) Recompute(articles []*domain.Article) {
	a.mu.Lock()
	a.recomputeLocked(articles)
	a.mu.Unlock()
}

// RecomputeFrom rebuilds the counters from the article set returned by
// list, holding the write lock across the read. An event applied
// concurrently either lands in the listed set or is folded in after the
// swap, so it is never lost to the rebuild.
func (a *Aggregator) RecomputeFrom(ctx context.Context, list func(context.Context) ([]*domain.Article, error)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	articles, err := list(ctx)
	if err != nil {
		return fmt.Errorf("list articles: %w", err)
	}
	a.recomputeLocked(articles)
	return nil
}

func (a *Aggregator) recomputeLocked(articles []*domain.Article) {
	seen := make(map[string]struct{}, len(articles))
	tagCounts := make(map[string]int)
	dayCounts := make(map[string]int)
	totalCleaned := 0

	for _, art := range articles {
		seen[art.ID] = struct{}{}
		if !art.Cleaned() {
			continue
		}
		totalCleaned++
		dayCounts[art.CreatedAt.UTC().Format(dateLayout)]++
		for _, t := range uniqueTags(art.Tags) {
			tagCounts[t]++
		}
	}

	a.seen = seen
	a.totalCleaned = totalCleaned
	a.tagCounts = tagCounts
	a.dayCounts = dayCounts

	a.logger.Info("aggregates recomputed",
		logging.Int("total_raw", len(seen)),
		logging.Int("total_cleaned", totalCleaned),
		logging.Int("tags", len(tagCounts)))
}

// Verify compares the incremental counters against a full recompute of
// the given article set without mutating state. A mismatch reports
// domain.ErrInconsistentAggregate; repair by calling Recompute.
func (a *Aggregator) Verify(articles []*domain.Article) error {
	fresh := New(logging.NewNop())
	fresh.Recompute(articles)
	want := fresh.Snapshot()

	a.mu.RLock()
	got := a.snapshotLocked()
	a.mu.RUnlock()

	if got.TotalRaw != want.TotalRaw || got.TotalCleaned != want.TotalCleaned {
		return fmt.Errorf("%w: totals raw=%d/%d cleaned=%d/%d",
			domain.ErrInconsistentAggregate,
			got.TotalRaw, want.TotalRaw, got.TotalCleaned, want.TotalCleaned)
	}
	if len(got.Tags) != len(want.Tags) {
		return fmt.Errorf("%w: tag cardinality %d != %d",
			domain.ErrInconsistentAggregate, len(got.Tags), len(want.Tags))
	}
	for i := range got.Tags {
		if got.Tags[i] != want.Tags[i] {
			return fmt.Errorf("%w: tag %q count %d != %d",
				domain.ErrInconsistentAggregate,
				got.Tags[i].Tag, got.Tags[i].Count, want.Tags[i].Count)
		}
	}
	return nil
}

func uniqueTags(tags []string) []string {
	set := make(map[string]struct{}, len(tags))
	out := tags[:0:0]
	for _, t := range tags {
		if _, ok := set[t]; ok {
			continue
		}
		set[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
