package judge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/llm-judge/internal/metrics"
	"github.com/giantswarm/llm-judge/internal/record"
	"github.com/giantswarm/llm-judge/internal/session"
)

const tracerName = "github.com/giantswarm/llm-judge/internal/judge"

// Driver owns the judge session and finalizes judged runs. Its session
// field is only touched from the coordinator's event loop.
type Driver struct {
	factory  session.Factory
	selector Selector
	store    RecordAppender
	logger   *slog.Logger
	metrics  *metrics.Recorder
	tracer   trace.Tracer

	judgeID string
	judge   session.Session
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithDriverLogger sets the driver's logger.
func WithDriverLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithDriverMetrics records stage durations.
func WithDriverMetrics(m *metrics.Recorder) DriverOption {
	return func(d *Driver) {
		d.metrics = m
	}
}

// NewDriver creates a judge driver.
func NewDriver(factory session.Factory, selector Selector, store RecordAppender, opts ...DriverOption) *Driver {
	d := &Driver{
		factory:  factory,
		selector: selector,
		store:    store,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// prepare returns the session for judge m, replacing the session of a
// different previous judge.
func (d *Driver) prepare(m ModelSelection) (session.Session, error) {
	if d.judge != nil && d.judgeID == m.DisplayID && d.judge.Model() == m.API() {
		return d.judge, nil
	}
	if d.judge != nil {
		_ = d.judge.Close()
		d.judge = nil
	}
	s, err := d.factory.New(m.API())
	if err != nil {
		return nil, fmt.Errorf("failed to create judge session for %s: %w", m.DisplayID, err)
	}
	d.judgeID = m.DisplayID
	d.judge = s
	return s, nil
}

// Start resets the judge session and sends prompt as a fresh single-turn
// conversation. Failures to start are reported to sink as failed events.
func (d *Driver) Start(ctx context.Context, prompt string, sink session.Sink) {
	s := d.judge
	if s == nil {
		sink(session.Event{Kind: session.EventFailed, Err: fmt.Errorf("no judge session prepared")})
		return
	}

	go func() {
		ctx, span := d.tracer.Start(ctx, "judge.start", trace.WithAttributes(
			attribute.String("judge.model", s.Model()),
		))
		defer span.End()

		if err := s.Reset(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reset failed")
			sink(session.Event{Kind: session.EventFailed, Err: err})
			return
		}

		started := time.Now()
		err := s.Send(ctx, prompt, func(ev session.Event) {
			if ev.Terminal() {
				d.metrics.ObserveStage("judging", time.Since(started))
			}
			sink(ev)
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "send failed")
			sink(session.Event{Kind: session.EventFailed, Err: fmt.Errorf("failed to send judge prompt: %w", err)})
		}
	}()
}

// Finalize selects the best model and persists the run in a single write.
// A selector failure leaves the best model unset; the record is still
// written.
func (d *Driver) Finalize(ctx context.Context, gen uint64, req FinalizeRequest) Finalized {
	ctx, span := d.tracer.Start(ctx, "judge.finalize", trace.WithAttributes(
		attribute.Int("answers", len(req.Answers)),
		attribute.String("judge.model", req.JudgeAPIID),
	))
	defer span.End()
	started := time.Now()
	defer func() { d.metrics.ObserveStage("finalize", time.Since(started)) }()

	out := Finalized{Gen: gen}

	best, err := d.selector.SelectBest(ctx, req.Judge.Text, req.JudgeAPIID)
	if err != nil {
		d.logger.Warn("best model selection failed", "error", err, "judge", req.JudgeAPIID)
		span.RecordError(err)
		out.SelectorErr = err
	} else {
		out.BestModel = best
	}

	records, err := d.store.Append(ctx, newRecord(req, out.BestModel))
	if err != nil {
		d.logger.Error("failed to persist judging record", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		out.PersistErr = err
		return out
	}
	if len(records) > 0 {
		out.RecordID = records[0].ID
	}
	return out
}

// close releases the judge session.
func (d *Driver) close() {
	if d.judge != nil {
		_ = d.judge.Close()
		d.judge = nil
	}
}

func newRecord(req FinalizeRequest, bestModel string) record.NewRecord {
	models := make([]record.AnswerEntry, 0, len(req.Answers))
	for _, a := range req.Answers {
		models = append(models, record.AnswerEntry{
			Model:  a.ModelID,
			Answer: a.FinalText,
			ID:     a.SourceRecordID,
		})
	}
	return record.NewRecord{
		Prompt: req.Prompt,
		ModelAnswer: record.ModelAnswer{
			Models: models,
			Judge: record.JudgeEntry{
				Model:     req.Judge.Model,
				Answer:    req.Judge.Text,
				Format:    string(req.Judge.Format),
				FullMarks: req.Judge.FullMarks,
			},
		},
		BestModel: bestModel,
	}
}
