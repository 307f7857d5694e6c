// Package inject provides dependency-injected positioning primitives for
// testing.
package inject

import (
	"context"

	"go.viam.com/positioning"
)

// Provider is an injected positioning provider. Unset functions fall back to
// the embedded Provider when present; otherwise starts and stops are no-ops
// and authorization reports allowed-always. RegisterHandler stores the
// handler in Handler so tests can drive provider events directly.
type Provider struct {
	positioning.Provider
	Handler positioning.Handler

	StartLowPowerFunc        func(ctx context.Context) error
	StopLowPowerFunc         func(ctx context.Context) error
	StartActiveFunc          func(ctx context.Context, accuracyHint float64) error
	StopActiveFunc           func(ctx context.Context) error
	CurrentAuthorizationFunc func() positioning.Authorization
	RegisterHandlerFunc      func(h positioning.Handler)
}

// StartLowPower calls the injected StartLowPower or the real version.
func (p *Provider) StartLowPower(ctx context.Context) error {
	if p.StartLowPowerFunc == nil {
		if p.Provider == nil {
			return nil
		}
		return p.Provider.StartLowPower(ctx)
	}
	return p.StartLowPowerFunc(ctx)
}

// StopLowPower calls the injected StopLowPower or the real version.
func (p *Provider) StopLowPower(ctx context.Context) error {
	if p.StopLowPowerFunc == nil {
		if p.Provider == nil {
			return nil
		}
		return p.Provider.StopLowPower(ctx)
	}
	return p.StopLowPowerFunc(ctx)
}

// StartActive calls the injected StartActive or the real version.
func (p *Provider) StartActive(ctx context.Context, accuracyHint float64) error {
	if p.StartActiveFunc == nil {
		if p.Provider == nil {
			return nil
		}
		return p.Provider.StartActive(ctx, accuracyHint)
	}
	return p.StartActiveFunc(ctx, accuracyHint)
}

// StopActive calls the injected StopActive or the real version.
func (p *Provider) StopActive(ctx context.Context) error {
	if p.StopActiveFunc == nil {
		if p.Provider == nil {
			return nil
		}
		return p.Provider.StopActive(ctx)
	}
	return p.StopActiveFunc(ctx)
}

// CurrentAuthorization calls the injected CurrentAuthorization or the real
// version.
func (p *Provider) CurrentAuthorization() positioning.Authorization {
	if p.CurrentAuthorizationFunc == nil {
		if p.Provider == nil {
			return positioning.AuthorizationAllowedAlways
		}
		return p.Provider.CurrentAuthorization()
	}
	return p.CurrentAuthorizationFunc()
}

// RegisterHandler calls the injected RegisterHandler or stores the handler.
func (p *Provider) RegisterHandler(h positioning.Handler) {
	if p.RegisterHandlerFunc != nil {
		p.RegisterHandlerFunc(h)
		return
	}
	p.Handler = h
}
