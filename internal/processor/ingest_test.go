package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitwire/newsclean/internal/domain"
)

func TestIngestor_Submit(t *testing.T) {
	ruleStore, store, agg, clf := newClassifyStack(t)
	_, err := ruleStore.Create(context.Background(), "nasa", "space", true)
	require.NoError(t, err)

	ing := NewIngestor(store, clf, agg, nil, 2, 16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ing.Start(ctx)

	id, err := ing.Submit(context.Background(), "nasa announces mission", testTime)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// The article is visible immediately, raw or already classified.
	_, err = store.Get(context.Background(), id)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		art, getErr := store.Get(context.Background(), id)
		return getErr == nil && art.Status == domain.StatusCleaned
	}, 2*time.Second, 10*time.Millisecond, "first classification pass runs asynchronously")

	ing.Stop()

	snap := agg.Snapshot()
	assert.Equal(t, 1, snap.TotalRaw)
	assert.Equal(t, 1, snap.TotalCleaned)
}

func TestIngestor_SubmitEmptyText(t *testing.T) {
	_, store, agg, clf := newClassifyStack(t)
	ing := NewIngestor(store, clf, agg, nil, 1, 4, nil)

	_, err := ing.Submit(context.Background(), "   ", testTime)
	require.ErrorIs(t, err, domain.ErrEmptyText)

	all, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all, "rejected submissions are not stored")
}

func TestIngestor_QueueFullClassifiesInline(t *testing.T) {
	ruleStore, store, agg, clf := newClassifyStack(t)
	_, err := ruleStore.Create(context.Background(), "nasa", "space", true)
	require.NoError(t, err)

	// Queue of one, workers never started: the second submit finds the
	// queue full and classifies inline.
	ing := NewIngestor(store, clf, agg, nil, 1, 1, nil)

	first, err := ing.Submit(context.Background(), "nasa one", testTime)
	require.NoError(t, err)
	second, err := ing.Submit(context.Background(), "nasa two", testTime)
	require.NoError(t, err)

	queued, err := store.Get(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRaw, queued.Status)

	inline, err := store.Get(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCleaned, inline.Status)
}
