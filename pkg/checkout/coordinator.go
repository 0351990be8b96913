package checkout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/metrics"
	"github.com/dmitrymomot/billingkit/pkg/notifications"
	"github.com/dmitrymomot/billingkit/pkg/payment"
)

// Initiator creates the checkout session. *payment.Builder implements it.
// Complete runs the success effects, such as navigation, and is called only
// for a result whose attempt is still current.
type Initiator interface {
	Create(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutResult, error)
	Complete(ctx context.Context, req payment.CheckoutRequest, res *payment.CheckoutResult)
}

// CancelHook releases state attached to an attempt that was superseded or
// cancelled, such as optimistic UI flags or a provider-side handle.
type CancelHook func(ctx context.Context, a Attempt)

type outcome struct {
	res *payment.CheckoutResult
	err error
}

type run struct {
	attempt Attempt
	req     payment.CheckoutRequest
	ctx     context.Context
	cancel  context.CancelFunc
	handle  *Handle
}

// Coordinator serialises checkout attempts for one user session. It is safe
// for concurrent use.
type Coordinator struct {
	initiator Initiator
	navigator payment.Navigator
	notifier  notifications.Notifier
	log       *slog.Logger
	metrics   *metrics.Collector
	now       func() time.Time
	hooks     []CancelHook

	mu        sync.Mutex
	state     State
	seq       uint64
	current   *run
	last      *Attempt
	listeners []func(Snapshot)

	inflight sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithNavigator(n payment.Navigator) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.navigator = n
		}
	}
}

func WithNotifier(n notifications.Notifier) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.notifier = n
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCancelHook registers a hook run for every superseded or cancelled attempt.
func WithCancelHook(h CancelHook) Option {
	return func(c *Coordinator) {
		if h != nil {
			c.hooks = append(c.hooks, h)
		}
	}
}

// New creates a coordinator in the Idle state. It panics if initiator is nil.
func New(initiator Initiator, opts ...Option) *Coordinator {
	if initiator == nil {
		panic("checkout: initiator is required")
	}
	c := &Coordinator{
		initiator: initiator,
		navigator: payment.NopNavigator{},
		notifier:  notifications.NoOpNotifier{},
		log:       logger.Nop(),
		now:       time.Now,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(logger.Component("checkout-coordinator"))
	return c
}

// OnChange registers a listener called with a snapshot after every state
// change. Listeners must not block.
func (c *Coordinator) OnChange(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Current returns the present state.
func (c *Coordinator) Current() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Start begins a checkout. A signed-out user is sent to sign-in and the
// returned handle is already resolved with payment.ErrMissingIdentity.
// Starting the plan that is already pending returns the existing handle.
// Starting a different plan supersedes the pending attempt first.
//
// The attempt is detached from ctx cancellation; use Cancel to abandon it.
func (c *Coordinator) Start(ctx context.Context, req payment.CheckoutRequest) *Handle {
	if req.User == nil || req.User.ID == "" {
		if err := c.navigator.RedirectToSignIn(ctx); err != nil {
			c.log.WarnContext(ctx, "redirect to sign-in", logger.Error(err))
		}
		return resolvedHandle(payment.ErrMissingIdentity)
	}

	c.mu.Lock()
	if c.state == StatePending && c.current.attempt.PlanID == req.Plan.ID {
		h := c.current.handle
		c.mu.Unlock()
		return h
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		attempt: Attempt{
			ID:        uuid.New(),
			Seq:       c.seq + 1,
			PlanID:    req.Plan.ID,
			Provider:  req.Provider,
			StartedAt: c.now(),
			Status:    StatusPending,
		},
		req:    req,
		ctx:    runCtx,
		cancel: cancel,
	}
	r.handle = newHandle(r.attempt)

	in := &input{run: r, seq: r.attempt.Seq}
	if err := c.fire(eventStart, in); err != nil {
		c.mu.Unlock()
		cancel()
		c.log.ErrorContext(ctx, "start checkout", logger.Error(err))
		return resolvedHandle(err)
	}
	snap := c.snapshotLocked()
	listeners := c.listeners
	c.inflight.Add(1)
	c.mu.Unlock()

	for _, fx := range in.effects {
		fx()
	}
	emit(listeners, snap)

	c.log.DebugContext(ctx, "checkout attempt started",
		logger.AttemptID(r.attempt.ID, r.attempt.Seq),
		logger.PlanID(r.attempt.PlanID),
		logger.Provider(r.attempt.Provider))

	go c.execute(r)
	return r.handle
}

// Cancel abandons the pending attempt, if any. The remote session may still
// be created; its result is discarded.
func (c *Coordinator) Cancel(reason string) bool {
	c.mu.Lock()
	if c.state != StatePending {
		c.mu.Unlock()
		return false
	}
	in := &input{run: c.current, seq: c.current.attempt.Seq, reason: reason}
	if err := c.fire(eventCancel, in); err != nil {
		c.mu.Unlock()
		return false
	}
	snap := c.snapshotLocked()
	listeners := c.listeners
	c.mu.Unlock()

	for _, fx := range in.effects {
		fx()
	}
	emit(listeners, snap)
	return true
}

// Drain waits until every started attempt returned from the initiator.
func (c *Coordinator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) execute(r *run) {
	defer c.inflight.Done()
	defer r.cancel()

	res, err := c.initiator.Create(r.ctx, r.req)
	c.resolve(r, outcome{res: res, err: err})
}

func (c *Coordinator) resolve(r *run, out outcome) {
	c.mu.Lock()
	in := &input{run: r, seq: r.attempt.Seq, outcome: out}
	if err := c.fire(eventResolve, in); err != nil {
		c.mu.Unlock()
		c.log.Debug("dropping stale checkout resolution",
			logger.AttemptID(r.attempt.ID, r.attempt.Seq),
			logger.PlanID(r.attempt.PlanID),
			logger.Error(err))
		return
	}
	terminal := c.snapshotLocked()
	clearIn := &input{run: r, seq: r.attempt.Seq}
	_ = c.fire(eventClear, clearIn)
	idle := c.snapshotLocked()
	listeners := c.listeners
	c.mu.Unlock()

	for _, fx := range in.effects {
		fx()
	}
	emit(listeners, terminal)
	emit(listeners, idle)
}

func (c *Coordinator) snapshotLocked() Snapshot {
	s := Snapshot{State: c.state}
	if c.current != nil {
		a := c.current.attempt
		s.Current = &a
	}
	if c.last != nil {
		a := *c.last
		s.Last = &a
	}
	return s
}

func emit(listeners []func(Snapshot), s Snapshot) {
	for _, fn := range listeners {
		fn(s)
	}
}

func (c *Coordinator) runHooks(ctx context.Context, a Attempt) {
	for _, h := range c.hooks {
		h(ctx, a)
	}
}

func begin(c *Coordinator, in *input) {
	c.seq = in.run.attempt.Seq
	c.current = in.run
}

func supersede(c *Coordinator, in *input) {
	old := c.current
	old.attempt.Status = StatusSuperseded
	old.attempt.Err = ErrSuperseded
	old.cancel()
	a := old.attempt
	c.last = &a

	userID := ""
	if old.req.User != nil {
		userID = old.req.User.ID
	}
	in.effects = append(in.effects, func() {
		ctx := context.WithoutCancel(old.ctx)
		old.handle.finish(nil, ErrSuperseded)
		c.runHooks(ctx, a)
		c.metrics.CheckoutAttempt(a.Provider.String(), metrics.OutcomeSuperseded, 0)
		c.log.InfoContext(ctx, "checkout attempt superseded",
			logger.AttemptID(a.ID, a.Seq),
			logger.PlanID(a.PlanID),
			slog.String("superseded_by", in.run.attempt.PlanID))
		n := notifications.Info(userID, "Your previous checkout was cancelled because a new one was started.").
			With("plan_id", a.PlanID)
		if err := c.notifier.Notify(ctx, n); err != nil {
			c.log.WarnContext(ctx, "send notification", logger.Error(err))
		}
	})
}

func settle(c *Coordinator, in *input) {
	r := c.current
	r.attempt.Result = in.outcome.res
	r.attempt.Err = in.outcome.err
	r.attempt.Status = StatusSuccess
	if in.outcome.err != nil {
		r.attempt.Status = StatusError
	}
	a := r.attempt
	c.last = &a

	in.effects = append(in.effects, func() {
		if in.outcome.err == nil {
			c.initiator.Complete(context.WithoutCancel(r.ctx), r.req, in.outcome.res)
		}
		r.handle.finish(in.outcome.res, in.outcome.err)
		if in.outcome.err == nil {
			return
		}
		switch payment.Classify(in.outcome.err) {
		case payment.KindMissingIdentity, payment.KindUnauthorized:
			if err := c.navigator.RedirectToSignIn(r.ctx); err != nil {
				c.log.Warn("redirect to sign-in", logger.Error(err))
			}
		}
	})
}

func release(c *Coordinator, _ *input) {
	c.current = nil
}

func abandon(c *Coordinator, in *input) {
	r := c.current
	r.attempt.Status = StatusSuperseded
	r.attempt.Err = ErrCancelled
	r.cancel()
	a := r.attempt
	c.last = &a
	c.current = nil

	in.effects = append(in.effects, func() {
		ctx := context.WithoutCancel(r.ctx)
		r.handle.finish(nil, ErrCancelled)
		c.runHooks(ctx, a)
		c.metrics.CheckoutAttempt(a.Provider.String(), metrics.OutcomeSuperseded, 0)
		c.log.InfoContext(ctx, "checkout attempt cancelled",
			logger.AttemptID(a.ID, a.Seq),
			slog.String("reason", in.reason))
	})
}
