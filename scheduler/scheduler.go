package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/positioning"
)

// A ContinuousDemand reports whether any continuous-tracking subscriber
// currently exists. The scheduler queries it when deciding how far to power
// down after the last one-shot request resolves.
type ContinuousDemand interface {
	HasContinuousDemand() bool
}

// An EventSink receives the events continuous-tracking consumers care about:
// accepted samples, plus system-wide authorization and provider-failure
// notifications. Sink methods are invoked outside the scheduler's
// serialization point, so implementations may call back into the scheduler.
type EventSink interface {
	AcceptSample(s positioning.Sample)
	NotifyAuthorizationChange(a positioning.Authorization)
	NotifyError(err error)
}

var _ = positioning.Handler(&Scheduler{})

var (
	errAccuracyNotPositive = errors.New("desired accuracy must be positive")
	errTimeoutNotPositive  = errors.New("timeout must be positive")
	errClosed              = errors.New("scheduler is closed")
)

// A Scheduler accepts concurrent one-shot positioning requests, matches them
// against the provider's sample stream, times them out, and keeps the
// provider at the cheapest power state that serves current demand.
//
// All mutable state lives behind a single mutex: there is exactly one
// scheduler turn at a time regardless of which goroutine (caller, provider
// callback, deadline timer) initiates it.
type Scheduler struct {
	provider  positioning.Provider
	sink      EventSink
	demand    ContinuousDemand
	deadlines *DeadlineManager
	cfg       Config
	logger    golog.Logger

	mu         sync.Mutex
	registry   *Registry
	power      positioning.PowerState
	activeHint float64
	latest     *positioning.Sample
	closed     bool

	cancelCtx  context.Context
	cancelFunc func()
}

// New returns a scheduler driving the given provider and registers itself as
// the provider's handler. sink and demand may be nil when no
// continuous-tracking consumers exist. If c is nil the system clock is used.
func New(
	provider positioning.Provider,
	sink EventSink,
	demand ContinuousDemand,
	cfg Config,
	c clock.Clock,
	logger golog.Logger,
) (*Scheduler, error) {
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	s := &Scheduler{
		provider:   provider,
		sink:       sink,
		demand:     demand,
		deadlines:  NewDeadlineManager(c),
		cfg:        cfg,
		logger:     logger,
		registry:   NewRegistry(),
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}
	provider.RegisterHandler(s)
	return s, nil
}

// Submit registers a one-shot request for a fix strictly more accurate than
// desiredAccuracy (meters) and returns a channel that receives exactly one
// Result. Submit never blocks: the channel is buffered and resolution is
// driven by sample arrival, deadline expiry, or cancellation.
func (s *Scheduler) Submit(desiredAccuracy float64, timeout time.Duration) (<-chan Result, error) {
	if desiredAccuracy <= 0 {
		return nil, errAccuracyNotPositive
	}
	if timeout <= 0 {
		return nil, errTimeoutNotPositive
	}

	result := make(chan Result, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	if s.provider.CurrentAuthorization().Forbidden() {
		result <- Result{Err: positioning.ErrRestricted}
		return result, nil
	}
	if cached := s.freshSampleLocked(); cached != nil && cached.Satisfies(desiredAccuracy) {
		result <- Result{Sample: *cached}
		return result, nil
	}

	req := &Request{
		ID:              uuid.New(),
		DesiredAccuracy: desiredAccuracy,
		Deadline:        s.deadlines.Now().Add(timeout),
		result:          result,
	}
	if err := s.registry.Add(req); err != nil {
		return nil, err
	}
	reqID := req.ID
	req.timer = s.deadlines.Schedule(timeout, func() {
		s.OnDeadline(reqID)
	})
	s.evaluatePowerLocked()
	s.logger.Debugw("one-shot request submitted",
		"id", reqID.String(), "accuracy", desiredAccuracy, "timeout", timeout)
	return result, nil
}

// RequestOneFix submits a request and blocks until it resolves or ctx is
// done. When ctx wins, the underlying request stays registered until its own
// deadline; its eventual result lands in the buffered channel and is
// discarded.
func (s *Scheduler) RequestOneFix(
	ctx context.Context,
	desiredAccuracy float64,
	timeout time.Duration,
) (positioning.Sample, error) {
	ch, err := s.Submit(desiredAccuracy, timeout)
	if err != nil {
		return positioning.Sample{}, err
	}
	select {
	case <-ctx.Done():
		return positioning.Sample{}, ctx.Err()
	case res := <-ch:
		return res.Sample, res.Err
	}
}

// OnSample records the provider's newest reading and resolves every pending
// request it satisfies. No-fix samples (accuracy <= 0) satisfy nothing and
// are neither cached nor forwarded. Power is re-evaluated on every turn,
// resolving or not: continuous demand is a pull-only signal, so a turn that
// changes nothing else may still be the first to notice demand vanished.
func (s *Scheduler) OnSample(sample positioning.Sample) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !sample.HasFix() {
		s.evaluatePowerLocked()
		s.mu.Unlock()
		s.logger.Debug("dropping no-fix sample")
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.deadlines.Now()
	}
	s.latest = &sample

	resolved := 0
	for _, req := range s.registry.AllPending() {
		if sample.Satisfies(req.DesiredAccuracy) {
			s.resolveLocked(req, Result{Sample: sample}, statusCompleted)
			resolved++
		}
	}
	if resolved > 0 {
		s.logger.Debugw("sample resolved requests",
			"accuracy", sample.HorizontalAccuracy, "resolved", resolved, "pending", s.registry.Len())
	}
	s.evaluatePowerLocked()
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink.AcceptSample(sample)
	}
}

// OnDeadline resolves the identified request as timed out. If the request
// already resolved by sample or cancellation, this is a no-op: first
// resolution wins and the deadline firing is vestigial.
func (s *Scheduler) OnDeadline(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req := s.registry.Find(id); req != nil && req.status == statusPending {
		s.logger.Debugw("one-shot request timed out", "id", id.String())
		s.resolveLocked(req, Result{Err: positioning.ErrTimedOut}, statusExpired)
	}
	// Even a vestigial firing is a turn; demand may have changed.
	s.evaluatePowerLocked()
}

// CancelAll resolves every pending request with reason (ErrCancelled when
// nil), clears the registry, and powers down to whatever residual
// continuous-tracking demand requires.
func (s *Scheduler) CancelAll(reason error) {
	if reason == nil {
		reason = positioning.ErrCancelled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelAllLocked(reason)
	s.evaluatePowerLocked()
}

// CancelAllPending cancels every pending one-shot request.
func (s *Scheduler) CancelAllPending() {
	s.CancelAll(nil)
}

// OnAuthorizationChanged reacts to a platform authorization change. A change
// to a forbidden state aborts all pending requests atomically; any other
// change leaves pending requests alone.
func (s *Scheduler) OnAuthorizationChanged(a positioning.Authorization) {
	s.mu.Lock()
	s.logger.Infow("authorization changed", "status", a.String())
	if a.Forbidden() {
		s.cancelAllLocked(positioning.ErrRestricted)
	}
	s.evaluatePowerLocked()
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink.NotifyAuthorizationChange(a)
	}
}

// OnProviderError aborts all pending requests: a provider-level failure
// invalidates any fix in flight. Continuous-tracking consumers are notified
// through the sink's error boundary instead of as resolved requests.
func (s *Scheduler) OnProviderError(err error) {
	failure := positioning.NewProviderFailureError(err)
	s.mu.Lock()
	s.logger.Errorw("provider failure; cancelling pending requests",
		"pending", s.registry.Len(), "error", err)
	s.cancelAllLocked(failure)
	s.evaluatePowerLocked()
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink.NotifyError(failure)
	}
}

// HandleSample implements positioning.Handler.
func (s *Scheduler) HandleSample(sample positioning.Sample) {
	s.OnSample(sample)
}

// HandleAuthorizationChange implements positioning.Handler.
func (s *Scheduler) HandleAuthorizationChange(a positioning.Authorization) {
	s.OnAuthorizationChanged(a)
}

// HandleProviderError implements positioning.Handler.
func (s *Scheduler) HandleProviderError(err error) {
	s.OnProviderError(err)
}

// PowerState returns the provider power level the scheduler currently holds.
func (s *Scheduler) PowerState() positioning.PowerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.power
}

// Stats is a point-in-time snapshot for logging and debugging.
type Stats struct {
	Pending int
	Power   positioning.PowerState
}

// Stats returns a snapshot of current scheduler state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Pending: s.registry.Len(), Power: s.power}
}

// Close cancels all pending requests and powers the provider down. Further
// submissions fail. Close is idempotent.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancelAllLocked(positioning.ErrCancelled)
	s.evaluatePowerLocked()
	s.mu.Unlock()
	s.cancelFunc()
	return nil
}

// resolveLocked delivers the request's result exactly once and detaches it
// from the registry and its deadline timer. Callers must hold s.mu.
func (s *Scheduler) resolveLocked(req *Request, res Result, st status) {
	if req.status != statusPending {
		return
	}
	req.status = st
	if req.timer != nil {
		req.timer.Cancel()
	}
	s.registry.Remove(req.ID)
	// The channel is buffered; delivery never waits on the consumer.
	req.result <- res
}

func (s *Scheduler) cancelAllLocked(reason error) {
	for _, req := range s.registry.AllPending() {
		s.resolveLocked(req, Result{Err: reason}, statusCancelled)
	}
}

// freshSampleLocked returns the cached sample if it is recent enough to hand
// to a new request, or nil.
func (s *Scheduler) freshSampleLocked() *positioning.Sample {
	if s.latest == nil {
		return nil
	}
	if maxAge := s.cfg.maxSampleAge(); maxAge > 0 && s.deadlines.Now().Sub(s.latest.Timestamp) > maxAge {
		return nil
	}
	return s.latest
}

// evaluatePowerLocked moves the provider to the cheapest power state that
// still serves current demand. Callers must hold s.mu.
func (s *Scheduler) evaluatePowerLocked() {
	target := positioning.PowerIdle
	var hint float64
	switch {
	case s.closed || s.provider.CurrentAuthorization().Forbidden():
	case !s.registry.IsEmpty():
		target = positioning.PowerActive
		hint = s.registry.StrictestAccuracy()
	case s.demand != nil && s.demand.HasContinuousDemand():
		target = s.cfg.trackingPower()
	}
	s.applyPowerLocked(target, hint)
}

func (s *Scheduler) applyPowerLocked(target positioning.PowerState, hint float64) {
	prev := s.power
	if target == prev && hint == s.activeHint {
		return
	}

	// Start the new mode before stopping the old one so there is no window
	// with no monitoring at all during an escalation or de-escalation.
	ctx := s.cancelCtx
	var err error
	switch target {
	case positioning.PowerActive:
		err = s.provider.StartActive(ctx, hint)
		if prev == positioning.PowerLowPower {
			err = multierr.Combine(err, s.provider.StopLowPower(ctx))
		}
	case positioning.PowerLowPower:
		err = s.provider.StartLowPower(ctx)
		if prev == positioning.PowerActive {
			err = multierr.Combine(err, s.provider.StopActive(ctx))
		}
	case positioning.PowerIdle:
		switch prev {
		case positioning.PowerActive:
			err = s.provider.StopActive(ctx)
		case positioning.PowerLowPower:
			err = s.provider.StopLowPower(ctx)
		case positioning.PowerIdle:
		}
	}
	if err != nil {
		s.logger.Errorw("provider power transition failed",
			"from", prev.String(), "to", target.String(), "error", err)
	}
	s.power = target
	s.activeHint = hint
	if prev != target {
		s.logger.Debugw("provider power state changed",
			"from", prev.String(), "to", target.String(), "hint", hint)
	}
}
