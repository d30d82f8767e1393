package pipeline

import (
	"context"
	"fmt"
	"iter"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
	"github.com/couchcryptid/quake-catalog-loader/internal/reader"
)

// RunBatch ingests every event from events into a new run, then processes
// them. Malformed records are reported and skipped; any other read error
// ends the run before processing. Cancelling ctx stops reading and reports
// the admitted events as aborted.
func (e *Engine) RunBatch(ctx context.Context, runID string, events iter.Seq2[domain.Event, error]) (*Run, error) {
	run := e.NewRun(runID)
	e.logger.Info("run started", "run_id", runID, "product_type", e.opts.Session.ProductType)

	for ev, err := range events {
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			if !reader.IsRecordError(err) {
				return run, fmt.Errorf("read input: %w", err)
			}
			run.RejectRecord(err)
			continue
		}
		run.Ingest(ev)
	}

	run.Process(ctx)

	s := run.Summary()
	attrs := []any{"run_id", runID, "total", s.Total, "failed", s.Failed}
	for _, o := range s.Outcomes() {
		attrs = append(attrs, string(o), s.ByOutcome[o])
	}
	e.logger.Info("run finished", attrs...)
	return run, ctx.Err()
}
