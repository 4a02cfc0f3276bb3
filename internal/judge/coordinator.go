package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/llm-judge/internal/metrics"
	"github.com/giantswarm/llm-judge/internal/session"
)

// ErrNotRunning is returned when the coordinator's loop has stopped.
var ErrNotRunning = errors.New("coordinator is not running")

// Coordinator fans a prompt out to the answer models, hands the collected
// answers to the judge and persists the result. All run state is owned by
// the goroutine executing Run; other methods communicate with it.
type Coordinator struct {
	factory         session.Factory
	driver          *Driver
	defaults        Defaults
	credentialCheck func() error
	logger          *slog.Logger
	metrics         *metrics.Recorder
	newRunID        func() string

	inbox   chan any
	stopped chan struct{}

	// loop-owned
	state        State
	handles      map[string]session.Session
	pending      *startRequest
	answersStart time.Time

	mu       sync.RWMutex
	snapshot Snapshot
	done     chan struct{}
	subs     map[int]chan RunEvent
	nextSub  int
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the coordinator's logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMetrics records run and answer outcomes.
func WithMetrics(m *metrics.Recorder) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithRunDefaults fills unset run configuration fields. Fields left unset
// in d keep the built-in defaults.
func WithRunDefaults(d Defaults) CoordinatorOption {
	return func(c *Coordinator) {
		c.defaults = d.merge(c.defaults)
	}
}

// WithCredentialCheck rejects runs while check returns an error.
func WithCredentialCheck(check func() error) CoordinatorOption {
	return func(c *Coordinator) {
		c.credentialCheck = check
	}
}

// WithRunIDGenerator overrides how run ids are minted.
func WithRunIDGenerator(fn func() string) CoordinatorOption {
	return func(c *Coordinator) {
		c.newRunID = fn
	}
}

// NewCoordinator creates a coordinator. Run must be called before any run
// can start.
func NewCoordinator(factory session.Factory, driver *Driver, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		factory:  factory,
		driver:   driver,
		logger:   slog.Default(),
		newRunID: uuid.NewString,
		defaults: BuiltinDefaults(),
		inbox:    make(chan any, 64),
		stopped:  make(chan struct{}),
		state:    NewState(),
		handles:  map[string]session.Session{},
		subs:     map[int]chan RunEvent{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.snapshot = c.state.Snapshot()
	return c
}

type startRequest struct {
	config RunConfig
	gen    uint64
	reply  chan error
}

type removeRequest struct {
	modelID string
	reply   chan error
}

// handlesReady reports that every session of generation gen was reset.
type handlesReady struct {
	gen uint64
	err error
}

// Run executes the event loop until ctx is cancelled. Sessions are closed
// on return.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.stopped)
	defer c.shutdown()

	c.logger.Debug("coordinator started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("coordinator stopping")
			return nil
		case msg := <-c.inbox:
			switch m := msg.(type) {
			case *startRequest:
				c.handleStart(ctx, m)
			case removeRequest:
				c.handleRemove(ctx, m)
			case handlesReady:
				c.handleReady(ctx, m)
			case Event:
				c.apply(ctx, m)
			default:
				c.logger.Warn("unexpected loop message", "type", fmt.Sprintf("%T", msg))
			}
		}
	}
}

// Start validates cfg and begins a run. It returns once every answer model
// was sent the prompt; answers then arrive asynchronously.
func (c *Coordinator) Start(ctx context.Context, cfg RunConfig) error {
	cfg = cfg.WithDefaults(c.defaults)
	if err := Validate(cfg); err != nil {
		return err
	}
	if c.credentialCheck != nil {
		if err := c.credentialCheck(); err != nil {
			return &ValidationError{Problems: []string{err.Error()}}
		}
	}

	req := &startRequest{config: cfg, reply: make(chan error, 1)}
	if err := c.send(ctx, req); err != nil {
		return err
	}
	select {
	case err := <-req.reply:
		return err
	case <-c.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RemoveAnswer deselects modelID and drops its answer from the current run.
func (c *Coordinator) RemoveAnswer(ctx context.Context, modelID string) error {
	req := removeRequest{modelID: modelID, reply: make(chan error, 1)}
	if err := c.send(ctx, req); err != nil {
		return err
	}
	select {
	case err := <-req.reply:
		return err
	case <-c.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns a snapshot of the current run.
func (c *Coordinator) State() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Wait blocks until the current run leaves the fetching and judging stages
// and returns its final snapshot. It returns immediately when no run is in
// progress.
func (c *Coordinator) Wait(ctx context.Context) (Snapshot, error) {
	c.mu.RLock()
	done := c.done
	c.mu.RUnlock()
	if done == nil {
		return c.State(), nil
	}
	select {
	case <-done:
		return c.State(), nil
	case <-c.stopped:
		return c.State(), ErrNotRunning
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// RunAndWait starts a run and waits for it to end.
func (c *Coordinator) RunAndWait(ctx context.Context, cfg RunConfig) (Snapshot, error) {
	if err := c.Start(ctx, cfg); err != nil {
		return c.State(), err
	}
	return c.Wait(ctx)
}

// Subscribe returns a channel receiving run events and a function that
// cancels the subscription. Events are dropped for subscribers that fall
// behind.
func (c *Coordinator) Subscribe(buffer int) (<-chan RunEvent, func()) {
	if buffer <= 0 {
		buffer = 256
	}
	ch := make(chan RunEvent, buffer)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *Coordinator) send(ctx context.Context, msg any) error {
	select {
	case c.inbox <- msg:
		return nil
	case <-c.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers msg to the loop from a worker goroutine.
func (c *Coordinator) post(ctx context.Context, msg any) {
	select {
	case c.inbox <- msg:
	case <-c.stopped:
	case <-ctx.Done():
	}
}

func (c *Coordinator) handleStart(ctx context.Context, req *startRequest) {
	if c.state.InProgress() || c.pending != nil {
		req.reply <- ErrRunInProgress
		return
	}

	cfg := req.config
	c.apply(ctx, RunStarted{RunID: c.newRunID(), Config: cfg})
	gen := c.state.Generation
	req.gen = gen

	c.mu.Lock()
	c.done = make(chan struct{})
	c.mu.Unlock()

	for id, h := range c.handles {
		if !cfg.hasAnswerModel(id) {
			c.closeHandle(id, h)
		}
	}

	sessions := make([]session.Session, 0, len(cfg.AnswerModels)+1)
	for _, m := range cfg.AnswerModels {
		h, ok := c.handles[m.DisplayID]
		if ok && h.Model() != m.API() {
			c.closeHandle(m.DisplayID, h)
			ok = false
		}
		if !ok {
			var err error
			h, err = c.factory.New(m.API())
			if err != nil {
				err = fmt.Errorf("failed to create session for %s: %w", m.DisplayID, err)
				c.apply(ctx, StartFailed{Gen: gen, Err: err})
				req.reply <- err
				return
			}
			c.handles[m.DisplayID] = h
		}
		sessions = append(sessions, h)
	}

	judgeSession, err := c.driver.prepare(cfg.JudgeModel)
	if err != nil {
		c.apply(ctx, StartFailed{Gen: gen, Err: err})
		req.reply <- err
		return
	}
	sessions = append(sessions, judgeSession)

	c.pending = req
	go func() {
		g, gctx := errgroup.WithContext(ctx)
		for _, s := range sessions {
			g.Go(func() error {
				if err := s.Reset(gctx); err != nil {
					return fmt.Errorf("failed to reset session for %s: %w", s.Model(), err)
				}
				return nil
			})
		}
		c.post(ctx, handlesReady{gen: gen, err: g.Wait()})
	}()
}

func (c *Coordinator) handleReady(ctx context.Context, msg handlesReady) {
	req := c.pending
	if req == nil || req.gen != msg.gen {
		return
	}
	c.pending = nil

	if msg.err != nil {
		c.apply(ctx, StartFailed{Gen: msg.gen, Err: msg.err})
		req.reply <- msg.err
		return
	}

	c.answersStart = time.Now()
	cfg := c.state.Config
	for _, m := range cfg.AnswerModels {
		if c.state.Generation != msg.gen || c.state.Status != StatusFetchingAnswers {
			break
		}
		h, ok := c.handles[m.DisplayID]
		if !ok {
			continue
		}
		if err := h.Send(ctx, cfg.Prompt, c.answerSink(ctx, msg.gen, m.DisplayID)); err != nil {
			c.apply(ctx, AnswerFailed{Gen: msg.gen, ModelID: m.DisplayID, Err: err})
		}
	}
	req.reply <- nil
}

func (c *Coordinator) handleRemove(ctx context.Context, req removeRequest) {
	_, d := Transition(c.state, AnswerRemoved{ModelID: req.modelID})
	if !d.Changed {
		req.reply <- fmt.Errorf("model %q is not part of the current run", req.modelID)
		return
	}
	c.apply(ctx, AnswerRemoved{ModelID: req.modelID})
	req.reply <- nil
}

func (c *Coordinator) answerSink(ctx context.Context, gen uint64, modelID string) session.Sink {
	runID := c.state.RunID
	return func(ev session.Event) {
		switch ev.Kind {
		case session.EventDelta:
			c.publish(RunEvent{Type: RunEventDelta, RunID: runID, ModelID: modelID, Delta: ev.Delta})
		case session.EventCompleted:
			c.post(ctx, AnswerCompleted{Gen: gen, ModelID: modelID, Content: ev.Content, RecordID: ev.RecordID})
		case session.EventFailed:
			c.post(ctx, AnswerFailed{Gen: gen, ModelID: modelID, Content: ev.Content, RecordID: ev.RecordID, Err: ev.Err})
		}
	}
}

func (c *Coordinator) judgeSink(ctx context.Context, gen uint64, judgeID string) session.Sink {
	runID := c.state.RunID
	return func(ev session.Event) {
		switch ev.Kind {
		case session.EventDelta:
			c.publish(RunEvent{Type: RunEventDelta, RunID: runID, ModelID: judgeID, Delta: ev.Delta})
		case session.EventCompleted:
			c.post(ctx, JudgeCompleted{Gen: gen, Text: ev.Content})
		case session.EventFailed:
			c.post(ctx, JudgeFailed{Gen: gen, Err: ev.Err})
		}
	}
}

// apply runs ev through Transition and performs the resulting effects.
func (c *Coordinator) apply(ctx context.Context, ev Event) {
	prev := c.state
	next, d := Transition(prev, ev)
	if !d.Changed {
		c.logger.Debug("ignoring event", "event", fmt.Sprintf("%T", ev), "generation", prev.Generation)
		return
	}
	c.state = next

	switch e := ev.(type) {
	case AnswerCompleted:
		c.recordAnswerMetric(e.ModelID)
	case AnswerFailed:
		c.recordAnswerMetric(e.ModelID)
	}

	for _, n := range d.Notifications {
		c.logNotification(n)
		c.publish(RunEvent{Type: RunEventNotification, RunID: next.RunID, ModelID: n.ModelID, Notification: &n})
	}

	snap := next.Snapshot()
	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
	c.publish(RunEvent{Type: RunEventState, RunID: next.RunID, State: &snap})

	if d.CloseHandle != "" {
		if h, ok := c.handles[d.CloseHandle]; ok {
			c.closeHandle(d.CloseHandle, h)
		}
	}

	if d.StartJudge != nil {
		c.metrics.ObserveStage("answers", time.Since(c.answersStart))
		c.logger.Info("starting judge", "run", next.RunID, "judge", d.StartJudge.Judge.DisplayID, "answers", len(next.Judged))
		c.driver.Start(ctx, d.StartJudge.Prompt, c.judgeSink(ctx, next.Generation, d.StartJudge.Judge.DisplayID))
	}

	if d.Finalize != nil {
		req := *d.Finalize
		gen := next.Generation
		go func() {
			c.post(ctx, c.driver.Finalize(ctx, gen, req))
		}()
	}

	if d.Outcome != "" {
		c.metrics.RunFinished(d.Outcome)
		c.logger.Info("run finished", "run", next.RunID, "outcome", d.Outcome, "record", next.RecordID)
		if c.pending != nil && c.pending.gen == next.Generation {
			c.pending.reply <- fmt.Errorf("run stopped before all prompts were sent")
			c.pending = nil
		}
		c.mu.Lock()
		if c.done != nil {
			close(c.done)
			c.done = nil
		}
		c.mu.Unlock()
	}
}

func (c *Coordinator) recordAnswerMetric(modelID string) {
	switch {
	case c.state.Failed[modelID]:
		c.metrics.AnswerOutcome("failed")
	case c.state.Completed[modelID]:
		c.metrics.AnswerOutcome("success")
	}
}

func (c *Coordinator) logNotification(n Notification) {
	attrs := []any{"kind", n.Kind, "run", c.state.RunID}
	if n.ModelID != "" {
		attrs = append(attrs, "model", n.ModelID)
	}
	switch n.Level {
	case LevelError:
		c.logger.Error(n.Message, attrs...)
	case LevelWarning:
		c.logger.Warn(n.Message, attrs...)
	default:
		c.logger.Info(n.Message, attrs...)
	}
}

func (c *Coordinator) publish(ev RunEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.logger.Debug("dropping run event for slow subscriber", "type", ev.Type)
		}
	}
}

func (c *Coordinator) closeHandle(id string, h session.Session) {
	if err := h.Close(); err != nil {
		c.logger.Debug("failed to close session", "model", id, "error", err)
	}
	delete(c.handles, id)
}

func (c *Coordinator) shutdown() {
	for id, h := range c.handles {
		c.closeHandle(id, h)
	}
	c.driver.close()
	if c.pending != nil {
		c.pending.reply <- ErrNotRunning
		c.pending = nil
	}
	c.mu.Lock()
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.mu.Unlock()
}
