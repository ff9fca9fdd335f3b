package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orbitwire/newsclean/internal/aggregate"
	"github.com/orbitwire/newsclean/internal/classify"
	"github.com/orbitwire/newsclean/internal/domain"
	"github.com/orbitwire/newsclean/internal/logging"
	"github.com/orbitwire/newsclean/internal/storage"
	"github.com/orbitwire/newsclean/internal/telemetry"
)

// DefaultIngestQueueSize bounds the async classification backlog.
const DefaultIngestQueueSize = 1024

// Ingestor accepts crawled articles and schedules their first
// classification pass. Submit persists the article immediately; the
// classification itself runs on a background worker pool so the ingest
// path stays fast under load.
type Ingestor struct {
	store      storage.ArticleStore
	classifier *classify.Classifier
	agg        *aggregate.Aggregator
	telemetry  *telemetry.Provider
	logger     logging.Logger

	queue   chan string
	workers int
	wg      sync.WaitGroup
}

// NewIngestor creates an ingestor with the given worker count and queue
// size. Call Start before submitting.
func NewIngestor(
	store storage.ArticleStore,
	classifier *classify.Classifier,
	agg *aggregate.Aggregator,
	tel *telemetry.Provider,
	workers, queueSize int,
	logger logging.Logger,
) *Ingestor {
	if workers <= 0 {
		workers = DefaultConcurrency
	}
	if queueSize <= 0 {
		queueSize = DefaultIngestQueueSize
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ingestor{
		store:      store,
		classifier: classifier,
		agg:        agg,
		telemetry:  tel,
		logger:     logger,
		queue:      make(chan string, queueSize),
		workers:    workers,
	}
}

// Start launches the classification workers. They run until ctx ends and
// the queue drains.
func (in *Ingestor) Start(ctx context.Context) {
	for i := 0; i < in.workers; i++ {
		in.wg.Add(1)
		go in.worker(ctx)
	}
	in.logger.Info("ingest workers started",
		logging.Int("workers", in.workers),
		logging.Int("queue_size", cap(in.queue)))
}

// Stop closes the queue and waits for in-flight work to finish. Submit
// must not be called after Stop.
func (in *Ingestor) Stop() {
	close(in.queue)
	in.wg.Wait()
	in.logger.Info("ingest workers stopped")
}

// Submit persists a new raw article and schedules its first
// classification pass, returning the assigned id. Empty text is
// rejected. When the queue is full the pass runs inline instead of being
// dropped.
func (in *Ingestor) Submit(ctx context.Context, rawText string, createdAt time.Time) (string, error) {
	if strings.TrimSpace(rawText) == "" {
		return "", domain.ErrEmptyText
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	article := &domain.Article{
		ID:        uuid.NewString(),
		RawText:   rawText,
		Status:    domain.StatusRaw,
		CreatedAt: createdAt.UTC(),
	}

	if err := in.store.Insert(ctx, article); err != nil {
		return "", fmt.Errorf("store article: %w", err)
	}

	in.agg.RecordIngest(article.ID)
	in.telemetry.RecordIngest()

	select {
	case in.queue <- article.ID:
		in.telemetry.SetIngestQueueDepth(len(in.queue))
	default:
		in.telemetry.IncrementWorkDropped()
		in.logger.Warn("ingest queue full, classifying inline",
			logging.String("article_id", article.ID))
		if _, err := in.classifier.Classify(ctx, article.ID); err != nil {
			// The article is stored and flagged; ingest itself succeeded.
			in.logger.Error("inline classification failed",
				logging.String("article_id", article.ID),
				logging.Error(err))
		}
	}

	return article.ID, nil
}

func (in *Ingestor) worker(ctx context.Context) {
	defer in.wg.Done()

	for id := range in.queue {
		in.telemetry.SetIngestQueueDepth(len(in.queue))
		if _, err := in.classifier.Classify(ctx, id); err != nil {
			in.logger.Error("first classification failed",
				logging.String("article_id", id),
				logging.Error(err))
		}
	}
}
