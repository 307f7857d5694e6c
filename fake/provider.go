// Package fake provides a controllable positioning Provider for tests and
// demos. It can run a background loop that emits samples whose accuracy ramps
// from coarse to fine while active, or be driven entirely by hand through the
// Inject methods.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	geo "github.com/kellydunn/golang-geo"
	"go.viam.com/utils"

	"go.viam.com/positioning"
)

// Config configures the fake's simulated behavior. The zero value is usable.
type Config struct {
	// EmitInterval is the delay between emitted samples while active
	// (low-power mode emits at 4x this interval). Defaults to 100ms.
	EmitInterval time.Duration `json:"emit_interval,omitempty"`
	// InitialAccuracy is the accuracy (meters) of the first sample after a
	// cold start. Defaults to 200.
	InitialAccuracy float64 `json:"initial_accuracy,omitempty"`
	// BestAccuracy is the floor the accuracy ramps down to. Defaults to 3.
	BestAccuracy float64 `json:"best_accuracy,omitempty"`
	// Ramp is the per-sample multiplier applied while converging toward
	// BestAccuracy. Defaults to 0.5.
	Ramp float64 `json:"ramp,omitempty"`
}

func (cfg Config) withDefaults() Config {
	if cfg.EmitInterval <= 0 {
		cfg.EmitInterval = 100 * time.Millisecond
	}
	if cfg.InitialAccuracy <= 0 {
		cfg.InitialAccuracy = 200
	}
	if cfg.BestAccuracy <= 0 {
		cfg.BestAccuracy = 3
	}
	if cfg.Ramp <= 0 || cfg.Ramp >= 1 {
		cfg.Ramp = 0.5
	}
	return cfg
}

var _ = positioning.Provider(&Provider{})

// Provider is a fake positioning.Provider.
type Provider struct {
	cfg    Config
	logger golog.Logger
	clock  clock.Clock

	mu          sync.Mutex
	handler     positioning.Handler
	auth        positioning.Authorization
	lowPower    bool
	active      bool
	hint        float64
	accuracy    float64
	location    *geo.Point
	loopRunning bool

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewProvider returns a fake provider that starts out allowed-always with no
// fix. If c is nil the system clock is used for sample timestamps.
func NewProvider(cfg Config, c clock.Clock, logger golog.Logger) *Provider {
	if c == nil {
		c = clock.New()
	}
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	cfg = cfg.withDefaults()
	return &Provider{
		cfg:        cfg,
		logger:     logger,
		clock:      c,
		auth:       positioning.AuthorizationAllowedAlways,
		accuracy:   cfg.InitialAccuracy,
		location:   geo.NewPoint(40.7, -73.98),
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}
}

// RegisterHandler implements positioning.Provider.
func (p *Provider) RegisterHandler(h positioning.Handler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// CurrentAuthorization implements positioning.Provider.
func (p *Provider) CurrentAuthorization() positioning.Authorization {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.auth
}

// StartLowPower implements positioning.Provider. Idempotent.
func (p *Provider) StartLowPower(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.auth.Forbidden() {
		return positioning.ErrRestricted
	}
	if p.lowPower {
		return nil
	}
	p.lowPower = true
	p.ensureLoopLocked()
	return nil
}

// StopLowPower implements positioning.Provider. Idempotent.
func (p *Provider) StopLowPower(ctx context.Context) error {
	p.mu.Lock()
	p.lowPower = false
	p.mu.Unlock()
	return nil
}

// StartActive implements positioning.Provider. Idempotent; re-issuing with a
// new hint only retunes.
func (p *Provider) StartActive(ctx context.Context, accuracyHint float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.auth.Forbidden() {
		return positioning.ErrRestricted
	}
	p.hint = accuracyHint
	if p.active {
		return nil
	}
	p.active = true
	p.accuracy = p.cfg.InitialAccuracy
	p.ensureLoopLocked()
	return nil
}

// StopActive implements positioning.Provider. Idempotent.
func (p *Provider) StopActive(ctx context.Context) error {
	p.mu.Lock()
	p.active = false
	p.mu.Unlock()
	return nil
}

// Running reports whether any mode (low-power or active) is on.
func (p *Provider) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lowPower || p.active
}

// ActiveHint returns the accuracy hint from the most recent StartActive.
func (p *Provider) ActiveHint() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hint
}

// SetAuthorization changes the simulated authorization state and notifies the
// registered handler when it actually changes.
func (p *Provider) SetAuthorization(a positioning.Authorization) {
	p.mu.Lock()
	changed := p.auth != a
	p.auth = a
	handler := p.handler
	p.mu.Unlock()
	if changed {
		p.logger.Debugw("authorization set", "status", a.String())
		if handler != nil {
			handler.HandleAuthorizationChange(a)
		}
	}
}

// InjectSample delivers a sample to the registered handler as if the
// hardware produced it.
func (p *Provider) InjectSample(s positioning.Sample) {
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler != nil {
		handler.HandleSample(s)
	}
}

// InjectError reports a provider-level failure to the registered handler.
func (p *Provider) InjectError(err error) {
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler != nil {
		handler.HandleProviderError(err)
	}
}

// Close stops the emit loop. The provider cannot be restarted afterward.
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	p.active = false
	p.lowPower = false
	p.mu.Unlock()
	p.cancelFunc()
	p.activeBackgroundWorkers.Wait()
	return nil
}

func (p *Provider) ensureLoopLocked() {
	if p.loopRunning {
		return
	}
	p.loopRunning = true
	p.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(p.emitLoop, p.activeBackgroundWorkers.Done)
}

func (p *Provider) emitLoop() {
	for {
		p.mu.Lock()
		if !p.active && !p.lowPower {
			p.loopRunning = false
			p.mu.Unlock()
			return
		}
		interval := p.cfg.EmitInterval
		if !p.active {
			// Significant-change monitoring: slower and coarser.
			interval *= 4
		}
		sample := p.nextSampleLocked()
		handler := p.handler
		p.mu.Unlock()

		if handler != nil {
			handler.HandleSample(sample)
		}
		if !utils.SelectContextOrWait(p.cancelCtx, interval) {
			p.mu.Lock()
			p.loopRunning = false
			p.mu.Unlock()
			return
		}
	}
}

// nextSampleLocked advances the simulated fix. While active, accuracy halves
// (by Ramp) each emit until it hits the floor; low-power mode holds a coarse
// fix.
func (p *Provider) nextSampleLocked() positioning.Sample {
	if p.active {
		p.accuracy *= p.cfg.Ramp
		if p.accuracy < p.cfg.BestAccuracy {
			p.accuracy = p.cfg.BestAccuracy
		}
	} else {
		p.accuracy = p.cfg.InitialAccuracy
	}
	return positioning.Sample{
		Location:           geo.NewPoint(p.location.Lat(), p.location.Lng()),
		Altitude:           15,
		HorizontalAccuracy: p.accuracy,
		Timestamp:          p.clock.Now(),
	}
}
