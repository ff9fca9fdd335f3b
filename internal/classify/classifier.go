// Package classify owns the article classification write path. One pass
// loads an article, evaluates it against the current rule snapshot,
// persists the result, and folds the outcome into the aggregates.
package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/orbitwire/newsclean/internal/aggregate"
	"github.com/orbitwire/newsclean/internal/domain"
	"github.com/orbitwire/newsclean/internal/logging"
	"github.com/orbitwire/newsclean/internal/rules"
	"github.com/orbitwire/newsclean/internal/storage"
	"github.com/orbitwire/newsclean/internal/telemetry"
)

// Notifier receives cleaned articles for downstream delivery. Called on
// a transition into cleaned status and retried until a publish succeeds.
type Notifier interface {
	NotifyCleaned(ctx context.Context, article *domain.Article) error
}

// Classifier runs classification passes. Passes over distinct articles
// run concurrently; passes over the same article are serialized by a
// per-article lock so the read-evaluate-write sequence stays atomic.
type Classifier struct {
	rules     *rules.Store
	store     storage.ArticleStore
	agg       *aggregate.Aggregator
	notifier  Notifier
	telemetry *telemetry.Provider
	logger    logging.Logger

	locks *keyedLock
}

// New creates a classifier. notifier and tel may be nil.
func New(
	ruleStore *rules.Store,
	store storage.ArticleStore,
	agg *aggregate.Aggregator,
	notifier Notifier,
	tel *telemetry.Provider,
	logger logging.Logger,
) *Classifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Classifier{
		rules:     ruleStore,
		store:     store,
		agg:       agg,
		notifier:  notifier,
		telemetry: tel,
		logger:    logger,
		locks:     newKeyedLock(),
	}
}

// Classify runs one full classification pass over the given article and
// returns the resulting event. The rule snapshot is pinned at call time:
// a rule mutation mid-pass does not affect this pass, it only makes the
// result stale at a later version. On failure the article is flagged for
// review and keeps its previous tags and status.
func (c *Classifier) Classify(ctx context.Context, articleID string) (*domain.ClassificationEvent, error) {
	c.locks.Lock(articleID)
	defer c.locks.Unlock(articleID)

	snap := c.rules.Snapshot()

	article, err := c.store.Get(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("load article: %w", err)
	}

	start := time.Now()
	tags := snap.Evaluate(article.RawText)
	matchDuration := time.Since(start)

	status := domain.StatusUncleaned
	if len(tags) > 0 {
		status = domain.StatusCleaned
	}

	ev := &domain.ClassificationEvent{
		ArticleID:      article.ID,
		PreviousStatus: article.Status,
		NewStatus:      status,
		PreviousTags:   article.Tags,
		NewTags:        tags,
		RuleVersion:    snap.Version(),
		CreatedAt:      article.CreatedAt,
	}

	if err = c.store.UpdateClassification(ctx, article.ID, tags, status, snap.Version()); err != nil {
		c.fail(ctx, article.ID, err)
		return nil, fmt.Errorf("persist classification: %w", err)
	}

	c.agg.Apply(ev)
	c.telemetry.RecordClassification(string(status), matchDuration)

	c.logger.Debug("article classified",
		logging.String("article_id", article.ID),
		logging.String("status", string(status)),
		logging.Int("tags", len(tags)),
		logging.Int64("rule_version", snap.Version()))

	if status == domain.StatusCleaned && ev.PreviousStatus != domain.StatusCleaned {
		_ = c.deliver(ctx, article, tags, snap.Version())
	}

	return ev, nil
}

// RedeliverUnsent retries delivery for cleaned articles whose earlier
// publish failed, leaving them sent=false. Each article is re-read under
// its lock so a concurrent reclassification out of cleaned status skips
// the redelivery. Returns the number delivered.
func (c *Classifier) RedeliverUnsent(ctx context.Context) (int, error) {
	if c.notifier == nil {
		return 0, nil
	}

	pending, err := c.store.ListUnsentCleaned(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unsent articles: %w", err)
	}

	delivered := 0
	for _, stale := range pending {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if c.redeliver(ctx, stale.ID) {
			delivered++
		}
	}

	if delivered > 0 {
		c.logger.Info("unsent articles redelivered",
			logging.Int("pending", len(pending)),
			logging.Int("delivered", delivered))
	}
	return delivered, nil
}

func (c *Classifier) redeliver(ctx context.Context, articleID string) bool {
	c.locks.Lock(articleID)
	defer c.locks.Unlock(articleID)

	article, err := c.store.Get(ctx, articleID)
	if err != nil || !article.Cleaned() || article.Sent {
		return false
	}
	return c.deliver(ctx, article, article.Tags, article.RuleVersion) == nil
}

// fail flags the article for review after a persistence error. The flag
// write is best effort; the original error is what the caller sees.
func (c *Classifier) fail(ctx context.Context, articleID string, cause error) {
	c.telemetry.RecordClassificationFailure()
	c.logger.Error("classification failed",
		logging.String("article_id", articleID),
		logging.Error(cause))

	if err := c.store.MarkNeedsReview(ctx, articleID); err != nil {
		c.logger.Warn("mark needs review failed",
			logging.String("article_id", articleID),
			logging.Error(err))
	}
}

func (c *Classifier) deliver(ctx context.Context, article *domain.Article, tags []string, version int64) error {
	if c.notifier == nil {
		return nil
	}

	cleaned := *article
	cleaned.Tags = tags
	cleaned.Status = domain.StatusCleaned
	cleaned.RuleVersion = version
	cleaned.NeedsReview = false
	cleaned.Sent = false

	if err := c.notifier.NotifyCleaned(ctx, &cleaned); err != nil {
		c.telemetry.RecordDelivery(false)
		c.logger.Warn("cleaned article delivery failed",
			logging.String("article_id", article.ID),
			logging.Error(err))
		return err
	}

	c.telemetry.RecordDelivery(true)
	if err := c.store.MarkSent(ctx, article.ID); err != nil {
		c.logger.Warn("mark sent failed",
			logging.String("article_id", article.ID),
			logging.Error(err))
	}
	return nil
}
