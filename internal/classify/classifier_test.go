package classify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitwire/newsclean/internal/aggregate"
	"github.com/orbitwire/newsclean/internal/domain"
	"github.com/orbitwire/newsclean/internal/rules"
	"github.com/orbitwire/newsclean/internal/storage"
)

var createdAt = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu       sync.Mutex
	articles []*domain.Article
	fail     error
}

func (n *recordingNotifier) NotifyCleaned(_ context.Context, article *domain.Article) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.articles = append(n.articles, article)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.articles)
}

type fixture struct {
	rules    *rules.Store
	store    *storage.MemoryStore
	agg      *aggregate.Aggregator
	notifier *recordingNotifier
	clf      *Classifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rules:    rules.NewStore(nil, nil),
		store:    storage.NewMemoryStore(),
		agg:      aggregate.New(nil),
		notifier: &recordingNotifier{},
	}
	f.clf = New(f.rules, f.store, f.agg, f.notifier, nil, nil)
	return f
}

func (f *fixture) addRule(t *testing.T, pattern, tag string) {
	t.Helper()
	_, err := f.rules.Create(context.Background(), pattern, tag, true)
	require.NoError(t, err)
}

func (f *fixture) addArticle(t *testing.T, id, text string) {
	t.Helper()
	err := f.store.Insert(context.Background(), &domain.Article{
		ID:        id,
		RawText:   text,
		Status:    domain.StatusRaw,
		CreatedAt: createdAt,
	})
	require.NoError(t, err)
	f.agg.RecordIngest(id)
}

func TestClassifier_Cleaned(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "nasa", "space")
	f.addRule(t, "launch", "space")
	f.addRule(t, "rocket", "aerospace")
	f.addArticle(t, "a1", "NASA rocket launch scheduled")

	ev, err := f.clf.Classify(context.Background(), "a1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusRaw, ev.PreviousStatus)
	assert.Equal(t, domain.StatusCleaned, ev.NewStatus)
	assert.Equal(t, []string{"aerospace", "space"}, ev.NewTags)
	assert.Equal(t, int64(3), ev.RuleVersion)

	stored, err := f.store.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCleaned, stored.Status)
	assert.Equal(t, []string{"aerospace", "space"}, stored.Tags)
	assert.Equal(t, int64(3), stored.RuleVersion)
	assert.True(t, stored.Sent, "delivered articles are marked sent")

	assert.Equal(t, 1, f.notifier.count())

	snap := f.agg.Snapshot()
	assert.Equal(t, 1, snap.TotalCleaned)
	assert.Len(t, snap.Tags, 2)
}

func TestClassifier_Uncleaned(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "nasa", "space")
	f.addArticle(t, "a1", "markets rally on earnings")

	ev, err := f.clf.Classify(context.Background(), "a1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusUncleaned, ev.NewStatus)
	assert.Empty(t, ev.NewTags)
	assert.Equal(t, 0, f.notifier.count(), "uncleaned articles are not delivered")

	snap := f.agg.Snapshot()
	assert.Equal(t, 1, snap.TotalRaw)
	assert.Equal(t, 0, snap.TotalCleaned)
}

func TestClassifier_NoEnabledRules(t *testing.T) {
	f := newFixture(t)
	f.addArticle(t, "a1", "anything")

	ev, err := f.clf.Classify(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUncleaned, ev.NewStatus)
}

func TestClassifier_IdempotentReclassification(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "nasa", "space")
	f.addArticle(t, "a1", "nasa news")

	_, err := f.clf.Classify(context.Background(), "a1")
	require.NoError(t, err)
	before := f.agg.Snapshot()

	ev, err := f.clf.Classify(context.Background(), "a1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCleaned, ev.PreviousStatus)
	assert.Equal(t, domain.StatusCleaned, ev.NewStatus)
	assert.Equal(t, before, f.agg.Snapshot(), "identical outcome leaves aggregates unchanged")
	assert.Equal(t, 1, f.notifier.count(), "no second delivery without a status transition")
}

func TestClassifier_RuleDisableFlipsStatus(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "nasa", "space")
	f.addArticle(t, "a1", "nasa news")

	_, err := f.clf.Classify(context.Background(), "a1")
	require.NoError(t, err)

	enabled := false
	_, err = f.rules.Update(context.Background(), 1, domain.RulePatch{Enabled: &enabled})
	require.NoError(t, err)

	ev, err := f.clf.Classify(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCleaned, ev.PreviousStatus)
	assert.Equal(t, domain.StatusUncleaned, ev.NewStatus)

	snap := f.agg.Snapshot()
	assert.Equal(t, 0, snap.TotalCleaned)
	assert.Empty(t, snap.Tags)
}

func TestClassifier_MissingArticle(t *testing.T) {
	f := newFixture(t)

	_, err := f.clf.Classify(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClassifier_DeliveryFailureDoesNotFailPass(t *testing.T) {
	f := newFixture(t)
	f.notifier.fail = errors.New("broker down")
	f.addRule(t, "nasa", "space")
	f.addArticle(t, "a1", "nasa news")

	_, err := f.clf.Classify(context.Background(), "a1")
	require.NoError(t, err)

	stored, err := f.store.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCleaned, stored.Status)
	assert.False(t, stored.Sent)
}

func (n *recordingNotifier) setFail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail = err
}

func TestClassifier_RedeliverUnsent(t *testing.T) {
	f := newFixture(t)
	f.notifier.setFail(errors.New("broker down"))
	f.addRule(t, "nasa", "space")
	f.addArticle(t, "a1", "nasa news")

	_, err := f.clf.Classify(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, 0, f.notifier.count())

	f.notifier.setFail(nil)

	delivered, err := f.clf.RedeliverUnsent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, f.notifier.count())

	stored, err := f.store.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, stored.Sent)

	// Nothing left to retry.
	delivered, err = f.clf.RedeliverUnsent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
	assert.Equal(t, 1, f.notifier.count(), "sent articles are not republished")
}

func TestClassifier_RedeliverKeepsUnsentOnRepeatedFailure(t *testing.T) {
	f := newFixture(t)
	f.notifier.setFail(errors.New("broker down"))
	f.addRule(t, "nasa", "space")
	f.addArticle(t, "a1", "nasa news")

	_, err := f.clf.Classify(context.Background(), "a1")
	require.NoError(t, err)

	delivered, err := f.clf.RedeliverUnsent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)

	stored, err := f.store.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCleaned, stored.Status)
	assert.False(t, stored.Sent, "article stays eligible for the next sweep")
}

// failingStore wraps the memory store and fails classification writes.
type failingStore struct {
	*storage.MemoryStore
	updateErr error
}

func (s *failingStore) UpdateClassification(ctx context.Context, id string, tags []string, status domain.Status, ruleVersion int64) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	return s.MemoryStore.UpdateClassification(ctx, id, tags, status, ruleVersion)
}

func TestClassifier_PersistFailureFlagsArticle(t *testing.T) {
	mem := storage.NewMemoryStore()
	store := &failingStore{MemoryStore: mem, updateErr: errors.New("write failed")}

	ruleStore := rules.NewStore(nil, nil)
	_, err := ruleStore.Create(context.Background(), "nasa", "space", true)
	require.NoError(t, err)

	agg := aggregate.New(nil)
	clf := New(ruleStore, store, agg, nil, nil, nil)

	require.NoError(t, mem.Insert(context.Background(), &domain.Article{
		ID:        "a1",
		RawText:   "nasa news",
		Status:    domain.StatusRaw,
		CreatedAt: createdAt,
	}))
	agg.RecordIngest("a1")

	_, err = clf.Classify(context.Background(), "a1")
	require.Error(t, err)

	stored, err := mem.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRaw, stored.Status, "failed pass keeps the previous status")
	assert.True(t, stored.NeedsReview)

	snap := agg.Snapshot()
	assert.Equal(t, 0, snap.TotalCleaned, "failed pass does not touch the aggregates")
}

func TestClassifier_ConcurrentPassesStayConsistent(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "nasa", "space")

	const n = 40
	for i := 0; i < n; i++ {
		f.addArticle(t, id(i), "nasa update")
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(articleID string) {
			defer wg.Done()
			// Classify each article twice concurrently.
			_, _ = f.clf.Classify(context.Background(), articleID)
			_, _ = f.clf.Classify(context.Background(), articleID)
		}(id(i))
	}
	wg.Wait()

	all, err := f.store.ListAll(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.agg.Verify(all))

	snap := f.agg.Snapshot()
	assert.Equal(t, n, snap.TotalRaw)
	assert.Equal(t, n, snap.TotalCleaned)
}

func id(i int) string {
	return "article-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
}
