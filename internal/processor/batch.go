// Package processor runs classification work: the ingest pipeline for
// newly submitted articles and the worker-pool batch runner used by
// reclassification sweeps.
package processor

import (
	"context"
	"sync"
	"time"

	"github.com/orbitwire/newsclean/internal/classify"
	"github.com/orbitwire/newsclean/internal/logging"
)

// DefaultConcurrency is the worker count when none is configured.
const DefaultConcurrency = 10

// Result holds the outcome of one article's classification pass.
type Result struct {
	ArticleID string
	Err       error
}

// BatchProcessor classifies batches of articles in parallel using a
// worker pool. A failed article is reported in its Result and does not
// stop the rest of the batch.
type BatchProcessor struct {
	classifier  *classify.Classifier
	concurrency int
	limiter     *RateLimiter
	logger      logging.Logger
}

// NewBatchProcessor creates a batch processor. limiter may be nil to run
// unthrottled.
func NewBatchProcessor(classifier *classify.Classifier, concurrency int, limiter *RateLimiter, logger logging.Logger) *BatchProcessor {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &BatchProcessor{
		classifier:  classifier,
		concurrency: concurrency,
		limiter:     limiter,
		logger:      logger,
	}
}

// Process classifies every article id in the batch and returns one
// Result per id. Stops early only on context cancellation; remaining ids
// are reported with ctx.Err().
func (b *BatchProcessor) Process(ctx context.Context, articleIDs []string) []Result {
	if len(articleIDs) == 0 {
		return nil
	}

	start := time.Now()
	b.logger.Info("batch started",
		logging.Int("batch_size", len(articleIDs)),
		logging.Int("concurrency", b.concurrency))

	jobs := make(chan string, len(articleIDs))
	results := make(chan Result, len(articleIDs))

	var wg sync.WaitGroup
	for i := 0; i < b.concurrency; i++ {
		wg.Add(1)
		go b.worker(ctx, jobs, results, &wg)
	}

	for _, id := range articleIDs {
		jobs <- id
	}
	close(jobs)

	wg.Wait()
	close(results)

	out := make([]Result, 0, len(articleIDs))
	failures := 0
	for res := range results {
		if res.Err != nil {
			failures++
		}
		out = append(out, res)
	}

	b.logger.Info("batch complete",
		logging.Int("total", len(articleIDs)),
		logging.Int("failures", failures),
		logging.Duration("duration", time.Since(start)))

	return out
}

func (b *BatchProcessor) worker(ctx context.Context, jobs <-chan string, results chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()

	for id := range jobs {
		if ctx.Err() != nil {
			results <- Result{ArticleID: id, Err: ctx.Err()}
			continue
		}

		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				results <- Result{ArticleID: id, Err: err}
				continue
			}
		}

		_, err := b.classifier.Classify(ctx, id)
		if err != nil {
			b.logger.Warn("article skipped",
				logging.String("article_id", id),
				logging.Error(err))
		}
		results <- Result{ArticleID: id, Err: err}
	}
}
