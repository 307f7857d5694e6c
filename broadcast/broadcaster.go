// Package broadcast fans accepted samples out to continuous-tracking
// subscribers and relays authorization and provider-failure notifications to
// status observers. It keeps an explicit subscriber list; the scheduler only
// ever sees it as a sample sink and a boolean demand signal.
package broadcast

import (
	"sync"

	"github.com/edaniels/golog"

	"go.viam.com/positioning"
)

const defaultBufferSize = 16

// A StatusObserver is told about system-wide state changes that do not
// resolve individual one-shot requests.
type StatusObserver interface {
	AuthorizationChanged(a positioning.Authorization)
	ProviderErrored(err error)
}

// A Broadcaster is the downstream fan-out for continuous tracking. It
// implements the scheduler's EventSink and ContinuousDemand.
type Broadcaster struct {
	logger golog.Logger

	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	observers []StatusObserver
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster(logger golog.Logger) *Broadcaster {
	return &Broadcaster{
		logger: logger,
		subs:   map[*Subscription]struct{}{},
	}
}

// Subscribe registers a continuous-tracking consumer. bufferSize bounds how
// many undelivered samples may queue (<= 0 selects a default); when the
// buffer is full the oldest sample is dropped so a slow consumer never stalls
// the sample path.
func (b *Broadcaster) Subscribe(bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	sub := &Subscription{
		b:       b,
		samples: make(chan positioning.Sample, bufferSize),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// AddStatusObserver registers an observer for authorization and provider
// error notifications.
func (b *Broadcaster) AddStatusObserver(o StatusObserver) {
	b.mu.Lock()
	b.observers = append(b.observers, o)
	b.mu.Unlock()
}

// HasContinuousDemand reports whether any subscriber exists. It implements
// scheduler.ContinuousDemand.
func (b *Broadcaster) HasContinuousDemand() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs) > 0
}

// AcceptSample delivers a sample to every subscriber. It implements
// scheduler.EventSink and never blocks.
func (b *Broadcaster) AcceptSample(s positioning.Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.samples <- s:
			continue
		default:
		}
		// Full; drop the oldest queued sample to make room for the newest.
		select {
		case <-sub.samples:
		default:
		}
		select {
		case sub.samples <- s:
		default:
		}
		b.logger.Debug("slow subscriber; dropped oldest queued sample")
	}
}

// NotifyAuthorizationChange implements scheduler.EventSink.
func (b *Broadcaster) NotifyAuthorizationChange(a positioning.Authorization) {
	for _, o := range b.statusObservers() {
		o.AuthorizationChanged(a)
	}
}

// NotifyError implements scheduler.EventSink.
func (b *Broadcaster) NotifyError(err error) {
	for _, o := range b.statusObservers() {
		o.ProviderErrored(err)
	}
}

func (b *Broadcaster) statusObservers() []StatusObserver {
	b.mu.Lock()
	defer b.mu.Unlock()
	observers := make([]StatusObserver, len(b.observers))
	copy(observers, b.observers)
	return observers
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// A Subscription is one continuous-tracking consumer's view of the sample
// stream.
type Subscription struct {
	b       *Broadcaster
	samples chan positioning.Sample
	once    sync.Once
}

// Samples returns the channel accepted samples arrive on. It is closed when
// the subscription closes.
func (s *Subscription) Samples() <-chan positioning.Sample {
	return s.samples
}

// Close unregisters the subscription and closes its channel. Close is
// idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.remove(s)
		close(s.samples)
	})
}
