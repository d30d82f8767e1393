package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/quake-catalog-loader/internal/association"
	"github.com/couchcryptid/quake-catalog-loader/internal/dispatch"
	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
	"github.com/couchcryptid/quake-catalog-loader/internal/observability"
	"github.com/couchcryptid/quake-catalog-loader/internal/product"
	"github.com/couchcryptid/quake-catalog-loader/internal/reader"
)

// DocumentStore persists rendered documents.
type DocumentStore interface {
	Exists(id string) bool
	Write(doc product.Document) (string, error)
}

// Options configures an Engine.
type Options struct {
	Session           association.Config
	Policy            association.Policy
	RenderOrphans     bool
	LookupConcurrency int
	// Trump issues an override dispatch after every send.
	Trump bool
	// TracerProvider receives run and stage spans. Nil uses the global provider.
	TracerProvider trace.TracerProvider
}

// Engine carries the long-lived collaborators shared by every run.
type Engine struct {
	opts       Options
	finder     domain.CandidateFinder
	decomposer domain.Decomposer
	assembler  *product.Assembler
	store      DocumentStore
	dispatcher dispatch.Dispatcher
	logger     *slog.Logger
	metrics    *observability.Metrics
	spans      observability.Spans
}

// NewEngine wires an Engine. A nil dispatcher renders without dispatching.
func NewEngine(opts Options, finder domain.CandidateFinder, decomposer domain.Decomposer, store DocumentStore, dispatcher dispatch.Dispatcher, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if opts.LookupConcurrency <= 0 {
		opts.LookupConcurrency = 1
	}
	return &Engine{
		opts:       opts,
		finder:     finder,
		decomposer: decomposer,
		assembler:  product.NewAssembler(opts.Session.ProductType),
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
		spans:      observability.NewSpans(opts.TracerProvider),
	}
}

// Run is one ingestion run: a single association session and its reports.
type Run struct {
	engine  *Engine
	id      string
	started time.Time
	session *association.Session
	decider association.Decider
	pending []int
	reports []domain.Report
	flushed int
}

// NewRun starts an empty run.
func (e *Engine) NewRun(runID string) *Run {
	return &Run{
		engine:  e,
		id:      runID,
		started: domain.Now(),
		session: association.NewSession(e.opts.Session, e.finder, e.decomposer),
		decider: association.Decider{
			ProductType:   e.opts.Session.ProductType,
			Policy:        e.opts.Policy,
			RenderOrphans: e.opts.RenderOrphans,
		},
	}
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Ingest admits ev into the run. Events whose document already exists and
// events that fail validation are reported immediately.
func (r *Run) Ingest(ev domain.Event) {
	e := r.engine
	if ev.ID != "" && e.store.Exists(ev.ID) {
		r.report(domain.Report{EventID: ev.ID, Outcome: domain.OutcomeSkippedExisting, Reason: "document already rendered"})
		return
	}

	pos, near, err := r.session.Add(ev)
	if err != nil {
		r.Reject(ev.ID, err)
		return
	}
	e.metrics.EventsIngested.Inc()
	if len(near) > 0 {
		e.metrics.NearPairs.Add(float64(len(near)))
		e.logger.Debug("event near earlier events", "event_id", ev.ID, "near", len(near))
	}
	r.pending = append(r.pending, pos)
}

// Reject reports an input record that never reached the session.
func (r *Run) Reject(id string, err error) {
	r.engine.metrics.RecordsRejected.Inc()
	r.report(domain.Report{EventID: id, Outcome: domain.OutcomeRejected, Reason: err.Error()})
}

// RejectRecord reports a reader error for a single malformed record.
func (r *Run) RejectRecord(err error) {
	var id string
	var re *reader.RecordError
	if errors.As(err, &re) {
		id = re.ID
		if id == "" {
			id = fmt.Sprintf("line %d", re.Line)
		}
	}
	r.Reject(id, err)
}

// Process associates, renders and dispatches every admitted event not yet
// processed and returns the reports recorded since the previous call.
// Candidate lookups run concurrently; decisions are made in admission order
// so interactive prompts and report order stay stable. When ctx is
// cancelled the remaining events are reported as aborted.
func (r *Run) Process(ctx context.Context) []domain.Report {
	e := r.engine
	pending := r.pending
	r.pending = nil

	ctx, span := e.spans.StartRun(ctx, r.id, string(e.opts.Session.ProductType))
	defer e.spans.End(span, nil)

	resolutions, errs := r.resolveAll(ctx, pending)
	for i, pos := range pending {
		if ctx.Err() != nil {
			ev := r.session.Event(pos)
			r.report(domain.Report{EventID: ev.ID, Outcome: domain.OutcomeAborted, Reason: ctx.Err().Error()})
			continue
		}
		r.process(ctx, pos, resolutions[i], errs[i])
	}

	out := append([]domain.Report(nil), r.reports[r.flushed:]...)
	r.flushed = len(r.reports)
	return out
}

func (r *Run) resolveAll(ctx context.Context, pending []int) ([]association.Resolution, []error) {
	e := r.engine
	resolutions := make([]association.Resolution, len(pending))
	errs := make([]error, len(pending))

	var g errgroup.Group
	g.SetLimit(e.opts.LookupConcurrency)
	for i, pos := range pending {
		g.Go(func() error {
			sctx, span := e.spans.StartStage(ctx, "associate", r.session.Event(pos).ID)
			resolutions[i], errs[i] = r.session.Resolve(sctx, pos)
			if sib := resolutions[i].Siblings; len(sib) > 0 {
				e.spans.Event(sctx, "near_events", attribute.StringSlice("event.siblings", siblingIDs(sib)))
			}
			if c := resolutions[i].Candidates; len(c) > 0 {
				e.spans.Event(sctx, "candidates", attribute.Int("candidate.count", len(c)))
			}
			e.spans.End(span, errs[i])
			return nil
		})
	}
	_ = g.Wait()
	return resolutions, errs
}

func (r *Run) process(ctx context.Context, pos int, res association.Resolution, resolveErr error) {
	e := r.engine
	ev := res.Event
	rep := domain.Report{
		EventID:    ev.ID,
		Candidates: len(res.Candidates),
		Siblings:   siblingIDs(res.Siblings),
	}

	if resolveErr != nil {
		rep.Outcome, rep.Reason = domain.OutcomeAssociationFailed, resolveErr.Error()
		r.report(rep)
		return
	}

	decision, err := r.decider.Decide(ctx, res)
	if err != nil {
		rep.Outcome, rep.Reason = decisionFailure(err)
		r.report(rep)
		return
	}
	if !decision.Render {
		rep.Outcome = domain.OutcomeUnassociated
		if decision.Kind == association.Ambiguous {
			rep.Outcome = domain.OutcomeAmbiguousUnresolved
		}
		rep.Reason = fmt.Sprintf("%s with %d candidates", decision.Kind, len(res.Candidates))
		r.report(rep)
		return
	}

	if decision.Chosen != nil {
		ev = r.session.Associate(pos, *decision.Chosen)
		rep.TriggerID = decision.Chosen.ID
	}

	doc, path, err := r.render(ctx, ev)
	switch {
	case errors.Is(err, product.ErrAlreadyRendered):
		rep.Outcome, rep.Reason = domain.OutcomeSkippedExisting, err.Error()
		r.report(rep)
		return
	case err != nil:
		rep.Outcome, rep.Reason = domain.OutcomeRenderFailed, err.Error()
		r.report(rep)
		return
	}
	rep.Document, rep.Version = path, doc.Version
	rep.Outcome = domain.OutcomeRendered

	if e.dispatcher != nil {
		r.dispatch(ctx, ev, doc, path, &rep)
	}
	r.report(rep)
}

func (r *Run) render(ctx context.Context, ev domain.Event) (product.Document, string, error) {
	e := r.engine
	_, span := e.spans.StartStage(ctx, "render", ev.ID)

	doc, err := e.assembler.Render(ev)
	if err != nil {
		e.spans.End(span, err)
		return product.Document{}, "", err
	}
	path, err := e.store.Write(doc)
	e.spans.End(span, err)
	if err != nil {
		return product.Document{}, "", err
	}
	e.metrics.DocumentsRendered.Inc()
	return doc, path, nil
}

func (r *Run) dispatch(ctx context.Context, ev domain.Event, doc product.Document, path string, rep *domain.Report) {
	e := r.engine
	ctx, span := e.spans.StartStage(ctx, "dispatch", ev.ID)

	kind := "send"
	if e.opts.Trump {
		kind = "trump"
	}
	start := time.Now()
	res, err := e.dispatcher.Send(ctx, dispatch.Request{
		Path:        path,
		ID:          ev.ID,
		Source:      ev.Source,
		ProductType: string(doc.ProductType),
		Version:     doc.Version,
		ElapsedDays: domain.Now().Sub(ev.Time).Hours() / 24,
		Trump:       e.opts.Trump,
	})
	e.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	rep.DispatchOutput = res.Output

	switch {
	case errors.Is(err, dispatch.ErrTimeout):
		e.metrics.Dispatches.WithLabelValues(kind, "timeout").Inc()
		rep.Outcome, rep.Reason = domain.OutcomeDispatchFailed, err.Error()
	case err != nil:
		e.metrics.Dispatches.WithLabelValues(kind, "failure").Inc()
		rep.Outcome, rep.Reason = domain.OutcomeDispatchFailed, err.Error()
	case !res.Success:
		e.metrics.Dispatches.WithLabelValues(kind, "failure").Inc()
		rep.Outcome = domain.OutcomeDispatchFailed
		rep.Reason = fmt.Sprintf("exit status %d: %s", res.ExitCode, res.Errors)
		err = fmt.Errorf("exit status %d", res.ExitCode)
	default:
		e.metrics.Dispatches.WithLabelValues(kind, "success").Inc()
		rep.Outcome = domain.OutcomeDispatched
	}
	e.spans.End(span, err)
}

// report stamps and records one report.
func (r *Run) report(rep domain.Report) {
	e := r.engine
	rep.RunID = r.id
	rep.ProductType = e.opts.Session.ProductType
	rep.ProcessedAt = domain.Now()
	r.reports = append(r.reports, rep)
	e.metrics.Outcomes.WithLabelValues(string(rep.Outcome)).Inc()

	attrs := []any{"run_id", r.id, "event_id", rep.EventID, "outcome", rep.Outcome}
	switch {
	case rep.Outcome.Failed():
		e.logger.Warn("event failed", append(attrs, "reason", rep.Reason)...)
	case rep.Reason != "":
		e.logger.Info("event skipped", append(attrs, "reason", rep.Reason)...)
	default:
		e.logger.Info("event processed", append(attrs, "document", rep.Document)...)
	}
}

// Reports returns every report recorded so far.
func (r *Run) Reports() []domain.Report {
	return append([]domain.Report(nil), r.reports...)
}

// Summary counts the run's reports by outcome.
func (r *Run) Summary() domain.Summary {
	return domain.Summarize(r.id, r.started, r.reports)
}

// decisionFailure maps a policy error to an outcome.
func decisionFailure(err error) (domain.Outcome, string) {
	switch {
	case errors.Is(err, association.ErrRejected):
		return domain.OutcomeRejected, err.Error()
	case errors.Is(err, association.ErrAttemptsExhausted):
		return domain.OutcomeAmbiguousUnresolved, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.OutcomeAborted, err.Error()
	}
	return domain.OutcomeAssociationFailed, err.Error()
}

func siblingIDs(events []domain.Event) []string {
	if len(events) == 0 {
		return nil
	}
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	return ids
}
