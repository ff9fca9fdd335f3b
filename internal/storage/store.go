// Package storage provides article and rule persistence for the
// newsclean engine: an in-memory store for tests and ephemeral runs, and
// a sqlx-backed store for sqlite or postgres.
package storage

import (
	"context"

	"github.com/orbitwire/newsclean/internal/domain"
)

// ArticleStore is the persistence boundary for articles. The classifier
// owns the write path for tags/status; raw_text is immutable after
// Insert.
type ArticleStore interface {
	// Insert stores a newly ingested article in raw status.
	Insert(ctx context.Context, article *domain.Article) error

	// Get returns one article, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Article, error)

	// UpdateClassification persists the result of one classification
	// pass and clears any needs-review flag. A transition into cleaned
	// resets the sent flag so the article is delivered again.
	UpdateClassification(ctx context.Context, id string, tags []string, status domain.Status, ruleVersion int64) error

	// MarkNeedsReview flags an article whose classification failed,
	// leaving its previous tags and status intact.
	MarkNeedsReview(ctx context.Context, id string) error

	// MarkSent records a successful downstream delivery.
	MarkSent(ctx context.Context, id string) error

	// ListClassifiedBefore returns ids of articles whose last
	// classification used a rule version older than the given one.
	ListClassifiedBefore(ctx context.Context, version int64) ([]string, error)

	// ListCleanedByDate returns cleaned articles created on the given
	// YYYY-MM-DD date, ordered by creation time.
	ListCleanedByDate(ctx context.Context, date string) ([]*domain.Article, error)

	// ListUnsentCleaned returns cleaned articles not yet delivered
	// downstream, ordered by creation time. Feeds the delivery retry
	// sweep and the sender pull endpoint.
	ListUnsentCleaned(ctx context.Context) ([]*domain.Article, error)

	// ListAll returns every stored article. Used by aggregate recompute.
	ListAll(ctx context.Context) ([]*domain.Article, error)
}
