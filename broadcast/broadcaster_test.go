package broadcast

import (
	"sync"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/positioning"
)

func sample(accuracy float64) positioning.Sample {
	return positioning.Sample{HorizontalAccuracy: accuracy}
}

func TestDemandTracksSubscriptions(t *testing.T) {
	b := NewBroadcaster(golog.NewTestLogger(t))
	test.That(t, b.HasContinuousDemand(), test.ShouldBeFalse)

	sub1 := b.Subscribe(0)
	sub2 := b.Subscribe(4)
	test.That(t, b.HasContinuousDemand(), test.ShouldBeTrue)

	sub1.Close()
	test.That(t, b.HasContinuousDemand(), test.ShouldBeTrue)
	sub2.Close()
	test.That(t, b.HasContinuousDemand(), test.ShouldBeFalse)
}

func TestFanOut(t *testing.T) {
	b := NewBroadcaster(golog.NewTestLogger(t))
	sub1 := b.Subscribe(4)
	sub2 := b.Subscribe(4)
	defer sub1.Close()
	defer sub2.Close()

	b.AcceptSample(sample(30))
	test.That(t, (<-sub1.Samples()).HorizontalAccuracy, test.ShouldEqual, 30)
	test.That(t, (<-sub2.Samples()).HorizontalAccuracy, test.ShouldEqual, 30)
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := NewBroadcaster(golog.NewTestLogger(t))
	sub := b.Subscribe(2)
	defer sub.Close()

	b.AcceptSample(sample(1))
	b.AcceptSample(sample(2))
	// Buffer full: the oldest queued sample gives way to the newest.
	b.AcceptSample(sample(3))

	test.That(t, (<-sub.Samples()).HorizontalAccuracy, test.ShouldEqual, 2)
	test.That(t, (<-sub.Samples()).HorizontalAccuracy, test.ShouldEqual, 3)
	select {
	case s := <-sub.Samples():
		t.Fatalf("unexpected extra sample: %+v", s)
	default:
	}
}

func TestSubscriptionCloseIdempotent(t *testing.T) {
	b := NewBroadcaster(golog.NewTestLogger(t))
	sub := b.Subscribe(1)
	sub.Close()
	sub.Close()

	// Channel is closed after Close.
	_, ok := <-sub.Samples()
	test.That(t, ok, test.ShouldBeFalse)

	// Publishing after Close must not panic.
	b.AcceptSample(sample(1))
}

type observerRecorder struct {
	mu    sync.Mutex
	auths []positioning.Authorization
	errs  []error
}

func (o *observerRecorder) AuthorizationChanged(a positioning.Authorization) {
	o.mu.Lock()
	o.auths = append(o.auths, a)
	o.mu.Unlock()
}

func (o *observerRecorder) ProviderErrored(err error) {
	o.mu.Lock()
	o.errs = append(o.errs, err)
	o.mu.Unlock()
}

func TestStatusObservers(t *testing.T) {
	b := NewBroadcaster(golog.NewTestLogger(t))
	obs := &observerRecorder{}
	b.AddStatusObserver(obs)

	b.NotifyAuthorizationChange(positioning.AuthorizationDenied)
	boom := errors.New("antenna fell off")
	b.NotifyError(boom)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	test.That(t, obs.auths, test.ShouldResemble, []positioning.Authorization{positioning.AuthorizationDenied})
	test.That(t, len(obs.errs), test.ShouldEqual, 1)
	test.That(t, obs.errs[0], test.ShouldEqual, boom)
}
