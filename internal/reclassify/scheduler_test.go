package reclassify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitwire/newsclean/internal/aggregate"
	"github.com/orbitwire/newsclean/internal/classify"
	"github.com/orbitwire/newsclean/internal/domain"
	"github.com/orbitwire/newsclean/internal/processor"
	"github.com/orbitwire/newsclean/internal/rules"
	"github.com/orbitwire/newsclean/internal/storage"
)

var testTime = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

type stack struct {
	rules *rules.Store
	store *storage.MemoryStore
	agg   *aggregate.Aggregator
	batch *processor.BatchProcessor
}

func newStack(t *testing.T) *stack {
	t.Helper()
	s := &stack{
		rules: rules.NewStore(nil, nil),
		store: storage.NewMemoryStore(),
		agg:   aggregate.New(nil),
	}
	clf := classify.New(s.rules, s.store, s.agg, nil, nil, nil)
	s.batch = processor.NewBatchProcessor(clf, 4, nil, nil)
	return s
}

func (s *stack) ingestAndClassify(t *testing.T, id, text string) {
	t.Helper()
	require.NoError(t, s.store.Insert(context.Background(), &domain.Article{
		ID:        id,
		RawText:   text,
		Status:    domain.StatusRaw,
		CreatedAt: testTime,
	}))
	s.agg.RecordIngest(id)
	s.batch.Process(context.Background(), []string{id})
}

func TestScheduler_SweepReclassifiesStaleArticles(t *testing.T) {
	s := newStack(t)

	_, err := s.rules.Create(context.Background(), "nasa", "space", true)
	require.NoError(t, err)

	s.ingestAndClassify(t, "a1", "nasa probe")
	s.ingestAndClassify(t, "a2", "flood warning")

	// A new rule makes both articles stale; a2 now matches.
	_, err = s.rules.Create(context.Background(), "flood", "weather", true)
	require.NoError(t, err)

	sched := New(s.rules, s.store, s.batch, time.Millisecond, time.Minute, nil, nil)
	sched.Sweep(context.Background(), s.rules.Version())

	a1, err := s.store.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), a1.RuleVersion)
	assert.Equal(t, []string{"space"}, a1.Tags)

	a2, err := s.store.Get(context.Background(), "a2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCleaned, a2.Status)
	assert.Equal(t, []string{"weather"}, a2.Tags)

	snap := s.agg.Snapshot()
	assert.Equal(t, 2, snap.TotalCleaned)
}

func TestScheduler_SweepSkipsRawArticles(t *testing.T) {
	s := newStack(t)

	_, err := s.rules.Create(context.Background(), "nasa", "space", true)
	require.NoError(t, err)

	require.NoError(t, s.store.Insert(context.Background(), &domain.Article{
		ID:        "raw1",
		RawText:   "nasa news",
		Status:    domain.StatusRaw,
		CreatedAt: testTime,
	}))

	sched := New(s.rules, s.store, s.batch, time.Millisecond, time.Minute, nil, nil)
	sched.Sweep(context.Background(), s.rules.Version())

	art, err := s.store.Get(context.Background(), "raw1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRaw, art.Status, "sweeps only touch already-classified articles")
}

func TestScheduler_ExpiredJobSkipsSweep(t *testing.T) {
	s := newStack(t)

	_, err := s.rules.Create(context.Background(), "nasa", "space", true)
	require.NoError(t, err)
	s.ingestAndClassify(t, "a1", "flood in the valley")

	// The signal from this mutation sits unconsumed past the TTL before
	// the scheduler starts.
	_, err = s.rules.Create(context.Background(), "flood", "weather", true)
	require.NoError(t, err)
	time.Sleep(80 * time.Millisecond)

	sched := New(s.rules, s.store, s.batch, time.Millisecond, 20*time.Millisecond, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	a1, err := s.store.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUncleaned, a1.Status, "expired job is dropped, not swept")
	assert.Equal(t, int64(1), a1.RuleVersion)

	// The next mutation queues a fresh job and the sweep runs.
	_, err = s.rules.Create(context.Background(), "valley", "geo", true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		art, getErr := s.store.Get(context.Background(), "a1")
		return getErr == nil && art.Status == domain.StatusCleaned
	}, 3*time.Second, 10*time.Millisecond, "a later rule change reschedules the sweep")
}

func TestScheduler_RunReactsToRuleChanges(t *testing.T) {
	s := newStack(t)

	_, err := s.rules.Create(context.Background(), "nasa", "space", true)
	require.NoError(t, err)
	s.ingestAndClassify(t, "a1", "flood in the valley")

	a1, err := s.store.Get(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusUncleaned, a1.Status)

	sched := New(s.rules, s.store, s.batch, time.Millisecond, time.Minute, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	// Drain the signal left over from the setup mutations, then mutate.
	time.Sleep(50 * time.Millisecond)
	_, err = s.rules.Create(context.Background(), "flood", "weather", true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		art, getErr := s.store.Get(context.Background(), "a1")
		return getErr == nil && art.Status == domain.StatusCleaned
	}, 3*time.Second, 10*time.Millisecond, "rule change triggers reclassification")
}
