// Package pipeline drives ingestion runs: a one-shot batch over an input
// file, or a streaming loop where every consumed batch is one run.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
	"github.com/couchcryptid/quake-catalog-loader/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// ReportLoader publishes the reports of a processed batch.
type ReportLoader interface {
	LoadBatch(ctx context.Context, reports []domain.Report) error
}

// Pipeline consumes normalized events and runs each batch through the engine.
type Pipeline struct {
	extractor BatchExtractor
	engine    *Engine
	loader    ReportLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	newRunID  func() string
	batchSize int

	ready atomic.Bool
	last  atomic.Pointer[domain.Summary]
}

// New creates a Pipeline. newRunID names the run created for each batch.
func New(e BatchExtractor, engine *Engine, l ReportLoader, newRunID func() string, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		engine:    engine,
		loader:    l,
		logger:    logger,
		metrics:   metrics,
		newRunID:  newRunID,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil once a batch has been processed and published.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any messages yet")
	}
	return nil
}

// LastSummary returns the summary of the most recent batch, if any.
func (p *Pipeline) LastSummary() (domain.Summary, bool) {
	s := p.last.Load()
	if s == nil {
		return domain.Summary{}, false
	}
	return *s, true
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-process-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}
	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.BatchSize.Observe(float64(len(batch)))
	*backoff = initialBackoff

	run := p.engine.NewRun(p.newRunID())
	for _, msg := range batch {
		ev, err := domain.DecodeEvent(msg.Value)
		if err != nil {
			p.logger.Warn("decode failed", "error", err,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
			run.Reject(string(msg.Key), err)
			continue
		}
		run.Ingest(ev)
	}
	reports := run.Process(ctx)
	if ctx.Err() != nil {
		// Aborted events are redelivered on restart; nothing is published or committed.
		return false
	}

	if err := p.loader.LoadBatch(ctx, reports); err != nil {
		p.logger.Error("load reports failed", "error", err, "reports", len(reports))
		return p.backoffOrStop(ctx, backoff)
	}
	for _, msg := range batch {
		p.commitOffset(ctx, msg)
	}

	summary := run.Summary()
	p.last.Store(&summary)
	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	p.logger.Info("batch processed", "run_id", run.ID(), "events", len(batch), "failed", summary.Failed)
	return true
}

// backoffOrStop sleeps with the current backoff and advances it. Returns
// false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sharedretry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = sharedretry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, msg domain.RawMessage) {
	if msg.Commit == nil {
		return
	}
	if err := msg.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	}
}
