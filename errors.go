package positioning

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrRestricted is returned when authorization forbids location use,
	// either at submission time or because it was revoked mid-flight.
	ErrRestricted = errors.New("location use restricted or denied")
	// ErrTimedOut is returned when a request's deadline elapsed before a
	// qualifying sample arrived.
	ErrTimedOut = errors.New("no qualifying sample before deadline")
	// ErrCancelled is returned when a request was cancelled before resolving.
	ErrCancelled = errors.New("request cancelled")
)

// A ProviderFailureError wraps an error reported by the underlying provider.
// It is terminal for every request pending at the time it occurs.
type ProviderFailureError struct {
	Cause error
}

func (e *ProviderFailureError) Error() string {
	return "provider failure: " + e.Cause.Error()
}

func (e *ProviderFailureError) Unwrap() error {
	return e.Cause
}

// NewProviderFailureError maps an error from the provider boundary into the
// error kind pending requests resolve with. A nil err is treated as an
// unspecified failure so that callers never see a nil-cause wrapper.
func NewProviderFailureError(err error) error {
	if err == nil {
		err = pkgerrors.New("provider reported unspecified failure")
	}
	var pfe *ProviderFailureError
	if errors.As(err, &pfe) {
		return err
	}
	return &ProviderFailureError{Cause: err}
}

// IsProviderFailure reports whether err originated at the provider boundary.
func IsProviderFailure(err error) bool {
	var pfe *ProviderFailureError
	return errors.As(err, &pfe)
}
