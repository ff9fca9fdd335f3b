package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/orbitwire/newsclean/internal/domain"
)

const dateLayout = "2006-01-02"

// MemoryStore is an in-memory ArticleStore. Safe for concurrent use; all
// reads return copies so callers never share mutable state.
type MemoryStore struct {
	mu       sync.RWMutex
	articles map[string]*domain.Article
}

// NewMemoryStore creates an empty in-memory article store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{articles: make(map[string]*domain.Article)}
}

// Insert stores a newly ingested article.
func (m *MemoryStore) Insert(ctx context.Context, article *domain.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.articles[article.ID]; ok {
		return fmt.Errorf("article %s already exists", article.ID)
	}
	cp := cloneArticle(article)
	m.articles[article.ID] = cp
	return nil
}

// Get returns one article by id.
func (m *MemoryStore) Get(ctx context.Context, id string) (*domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	art, ok := m.articles[id]
	if !ok {
		return nil, fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	return cloneArticle(art), nil
}

// UpdateClassification persists a classification result.
func (m *MemoryStore) UpdateClassification(ctx context.Context, id string, tags []string, status domain.Status, ruleVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	art, ok := m.articles[id]
	if !ok {
		return fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}

	wasCleaned := art.Status == domain.StatusCleaned
	art.Tags = append([]string(nil), tags...)
	art.Status = status
	art.RuleVersion = ruleVersion
	art.NeedsReview = false
	if status == domain.StatusCleaned && !wasCleaned {
		art.Sent = false
	}
	return nil
}

// MarkNeedsReview flags an article for manual inspection.
func (m *MemoryStore) MarkNeedsReview(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	art, ok := m.articles[id]
	if !ok {
		return fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	art.NeedsReview = true
	return nil
}

// MarkSent records a downstream delivery.
func (m *MemoryStore) MarkSent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	art, ok := m.articles[id]
	if !ok {
		return fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	art.Sent = true
	return nil
}

// ListClassifiedBefore returns ids of classified articles stale relative
// to the given rule version, ordered by creation time then id for
// reproducible batches.
func (m *MemoryStore) ListClassifiedBefore(ctx context.Context, version int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stale := make([]*domain.Article, 0)
	for _, art := range m.articles {
		if art.Classified() && art.RuleVersion < version {
			stale = append(stale, art)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		if !stale[i].CreatedAt.Equal(stale[j].CreatedAt) {
			return stale[i].CreatedAt.Before(stale[j].CreatedAt)
		}
		return stale[i].ID < stale[j].ID
	})

	ids := make([]string, len(stale))
	for i, art := range stale {
		ids[i] = art.ID
	}
	return ids, nil
}

// ListCleanedByDate returns cleaned articles created on the given day.
func (m *MemoryStore) ListCleanedByDate(ctx context.Context, date string) ([]*domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Article, 0)
	for _, art := range m.articles {
		if art.Cleaned() && art.CreatedAt.UTC().Format(dateLayout) == date {
			out = append(out, cloneArticle(art))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListUnsentCleaned returns cleaned articles awaiting delivery.
func (m *MemoryStore) ListUnsentCleaned(ctx context.Context) ([]*domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Article, 0)
	for _, art := range m.articles {
		if art.Cleaned() && !art.Sent {
			out = append(out, cloneArticle(art))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListAll returns every stored article.
func (m *MemoryStore) ListAll(ctx context.Context) ([]*domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Article, 0, len(m.articles))
	for _, art := range m.articles {
		out = append(out, cloneArticle(art))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneArticle(a *domain.Article) *domain.Article {
	cp := *a
	cp.Tags = append([]string(nil), a.Tags...)
	return &cp
}
