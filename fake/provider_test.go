package fake_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"go.viam.com/positioning"
	"go.viam.com/positioning/broadcast"
	"go.viam.com/positioning/fake"
	"go.viam.com/positioning/scheduler"
)

type collectingHandler struct {
	mu      sync.Mutex
	samples []positioning.Sample
	auths   []positioning.Authorization
	errs    []error
	gotOne  chan struct{}
	once    sync.Once
}

func newCollectingHandler() *collectingHandler {
	return &collectingHandler{gotOne: make(chan struct{})}
}

func (h *collectingHandler) HandleSample(s positioning.Sample) {
	h.mu.Lock()
	h.samples = append(h.samples, s)
	h.mu.Unlock()
	h.once.Do(func() { close(h.gotOne) })
}

func (h *collectingHandler) HandleAuthorizationChange(a positioning.Authorization) {
	h.mu.Lock()
	h.auths = append(h.auths, a)
	h.mu.Unlock()
}

func (h *collectingHandler) HandleProviderError(err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
}

func TestEmitLoopRampsAccuracy(t *testing.T) {
	ctx := context.Background()
	logger := golog.NewTestLogger(t)
	p := fake.NewProvider(fake.Config{
		EmitInterval:    time.Millisecond,
		InitialAccuracy: 100,
		BestAccuracy:    5,
		Ramp:            0.5,
	}, nil, logger)
	defer func() {
		test.That(t, p.Close(ctx), test.ShouldBeNil)
	}()

	h := newCollectingHandler()
	p.RegisterHandler(h)

	test.That(t, p.StartActive(ctx, 10), test.ShouldBeNil)
	// Idempotent; the hint retunes without restarting.
	test.That(t, p.StartActive(ctx, 8), test.ShouldBeNil)
	test.That(t, p.ActiveHint(), test.ShouldEqual, 8)
	test.That(t, p.Running(), test.ShouldBeTrue)

	<-h.gotOne
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		n := len(h.samples)
		var last float64
		if n > 0 {
			last = h.samples[n-1].HorizontalAccuracy
		}
		h.mu.Unlock()
		if last == 5 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	test.That(t, len(h.samples), test.ShouldBeGreaterThan, 1)
	// Accuracy improves monotonically down to the floor.
	for i := 1; i < len(h.samples); i++ {
		test.That(t, h.samples[i].HorizontalAccuracy,
			test.ShouldBeLessThanOrEqualTo, h.samples[i-1].HorizontalAccuracy)
	}
	test.That(t, h.samples[len(h.samples)-1].HorizontalAccuracy, test.ShouldEqual, 5)
}

func TestStartWhileForbidden(t *testing.T) {
	ctx := context.Background()
	p := fake.NewProvider(fake.Config{}, nil, golog.NewTestLogger(t))
	defer func() {
		test.That(t, p.Close(ctx), test.ShouldBeNil)
	}()

	h := newCollectingHandler()
	p.RegisterHandler(h)
	p.SetAuthorization(positioning.AuthorizationDenied)

	err := p.StartActive(ctx, 10)
	test.That(t, errors.Is(err, positioning.ErrRestricted), test.ShouldBeTrue)
	err = p.StartLowPower(ctx)
	test.That(t, errors.Is(err, positioning.ErrRestricted), test.ShouldBeTrue)
	test.That(t, p.Running(), test.ShouldBeFalse)

	h.mu.Lock()
	defer h.mu.Unlock()
	test.That(t, h.auths, test.ShouldResemble, []positioning.Authorization{positioning.AuthorizationDenied})
}

func TestInjectHooks(t *testing.T) {
	ctx := context.Background()
	p := fake.NewProvider(fake.Config{}, nil, golog.NewTestLogger(t))
	defer func() {
		test.That(t, p.Close(ctx), test.ShouldBeNil)
	}()

	h := newCollectingHandler()
	p.RegisterHandler(h)

	p.InjectSample(positioning.Sample{HorizontalAccuracy: 12})
	boom := errors.New("simulated outage")
	p.InjectError(boom)

	h.mu.Lock()
	defer h.mu.Unlock()
	test.That(t, len(h.samples), test.ShouldEqual, 1)
	test.That(t, h.samples[0].HorizontalAccuracy, test.ShouldEqual, 12)
	test.That(t, len(h.errs), test.ShouldEqual, 1)
	test.That(t, h.errs[0], test.ShouldEqual, boom)
}

func TestStopIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := fake.NewProvider(fake.Config{EmitInterval: time.Millisecond}, nil, golog.NewTestLogger(t))
	defer func() {
		test.That(t, p.Close(ctx), test.ShouldBeNil)
	}()
	p.RegisterHandler(newCollectingHandler())

	test.That(t, p.StopActive(ctx), test.ShouldBeNil)
	test.That(t, p.StopLowPower(ctx), test.ShouldBeNil)

	test.That(t, p.StartActive(ctx, 10), test.ShouldBeNil)
	test.That(t, p.StopActive(ctx), test.ShouldBeNil)
	test.That(t, p.StopActive(ctx), test.ShouldBeNil)
	test.That(t, p.Running(), test.ShouldBeFalse)
}

// End to end: a scheduler drives the fake provider's power state and resolves
// one-shot requests off its emitted stream.
func TestEndToEndOneFix(t *testing.T) {
	ctx := context.Background()
	logger := golog.NewTestLogger(t)
	p := fake.NewProvider(fake.Config{
		EmitInterval:    time.Millisecond,
		InitialAccuracy: 100,
		BestAccuracy:    2,
		Ramp:            0.5,
	}, nil, logger)
	defer func() {
		test.That(t, p.Close(ctx), test.ShouldBeNil)
	}()

	bcast := broadcast.NewBroadcaster(logger)
	sched, err := scheduler.New(p, bcast, bcast, scheduler.Config{}, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, sched.Close(ctx), test.ShouldBeNil)
	}()

	sub := bcast.Subscribe(64)
	defer sub.Close()

	sample, err := sched.RequestOneFix(ctx, 10, 5*time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sample.HorizontalAccuracy, test.ShouldBeLessThan, 10)
	test.That(t, sample.Location, test.ShouldNotBeNil)

	// The subscriber kept the provider from going idle.
	test.That(t, sched.PowerState(), test.ShouldEqual, positioning.PowerLowPower)
	test.That(t, p.Running(), test.ShouldBeTrue)

	// The continuous stream saw samples too.
	select {
	case s, ok := <-sub.Samples():
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, s.HasFix(), test.ShouldBeTrue)
	case <-time.After(time.Second):
		t.Fatal("no sample reached the subscriber")
	}
}
