// Package positioning provides positioning services on top of a continuous,
// asynchronous stream of position samples produced by an underlying platform
// provider.
package positioning

import (
	"context"
	"time"

	"github.com/golang/geo/r3"
	geo "github.com/kellydunn/golang-geo"
)

// A Sample is a single position reading. Samples are immutable once produced.
type Sample struct {
	Location *geo.Point
	// Altitude is meters above sea level.
	Altitude float64
	// HorizontalAccuracy is the estimated horizontal error radius in meters;
	// smaller is better. A value <= 0 means the provider has no fix yet.
	HorizontalAccuracy float64
	// Velocity is ground velocity in meters per second.
	Velocity  r3.Vector
	Timestamp time.Time
}

// HasFix reports whether this sample represents an actual fix, as opposed to
// a no-fix-yet placeholder reading.
func (s Sample) HasFix() bool {
	return s.HorizontalAccuracy > 0
}

// Satisfies reports whether this sample is strictly more accurate than the
// given threshold. A no-fix sample satisfies no threshold.
func (s Sample) Satisfies(desiredAccuracy float64) bool {
	return s.HasFix() && s.HorizontalAccuracy < desiredAccuracy
}

// Authorization is the platform's answer to whether we may use location at all.
type Authorization int

// The set of authorization states a provider can report.
const (
	AuthorizationNotDetermined Authorization = iota
	AuthorizationRestricted
	AuthorizationDenied
	AuthorizationAllowedWhileInUse
	AuthorizationAllowedAlways
)

// Forbidden reports whether this state rules out any location use. Note that
// NotDetermined is not forbidden; prompting the user is the provider's job.
func (a Authorization) Forbidden() bool {
	return a == AuthorizationRestricted || a == AuthorizationDenied
}

func (a Authorization) String() string {
	switch a {
	case AuthorizationNotDetermined:
		return "not_determined"
	case AuthorizationRestricted:
		return "restricted"
	case AuthorizationDenied:
		return "denied"
	case AuthorizationAllowedWhileInUse:
		return "allowed_while_in_use"
	case AuthorizationAllowedAlways:
		return "allowed_always"
	}
	return "unknown"
}

// PowerState is the level of provider activity currently demanded.
type PowerState int

// The power ladder, ordered from cheapest to most expensive.
const (
	PowerIdle PowerState = iota
	PowerLowPower
	PowerActive
)

func (p PowerState) String() string {
	switch p {
	case PowerIdle:
		return "idle"
	case PowerLowPower:
		return "low_power"
	case PowerActive:
		return "active"
	}
	return "unknown"
}

// A Handler receives events from a Provider. Calls may arrive from arbitrary
// goroutines; implementations must do their own serialization.
type Handler interface {
	HandleSample(s Sample)
	HandleAuthorizationChange(a Authorization)
	HandleProviderError(err error)
}

// A Provider produces position samples and authorization changes
// asynchronously. Start/stop methods are idempotent: starting a mode that is
// already running or stopping one that is not must have no observable effect.
//
// Only one component should drive a Provider's start/stop methods, and only
// from within that component's serialization point, so that power transitions
// never race each other.
type Provider interface {
	// StartLowPower begins infrequent, coarse monitoring (significant-change
	// style updates).
	StartLowPower(ctx context.Context) error
	StopLowPower(ctx context.Context) error
	// StartActive begins continuous high-rate tracking. accuracyHint is the
	// strictest accuracy (meters) any current consumer wants; providers may
	// use it to tune hardware, or ignore it.
	StartActive(ctx context.Context, accuracyHint float64) error
	StopActive(ctx context.Context) error

	CurrentAuthorization() Authorization

	// RegisterHandler wires the receiver of samples, failures, and
	// authorization changes. Must be called before any start method.
	RegisterHandler(h Handler)
}
