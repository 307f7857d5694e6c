package scheduler

import (
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/positioning"
)

// Tracking power policy names accepted in configuration.
const (
	trackingLowPower = "low_power"
	trackingActive   = "active"
)

// Config configures a Scheduler. The zero value is usable.
type Config struct {
	// TrackingPower is the power level to hold while continuous-tracking
	// demand exists and no one-shot request is pending. Accepts "low_power"
	// (the default) or "active".
	TrackingPower string `json:"tracking_power,omitempty"`
	// MaxSampleAgeMillis bounds how old a cached sample may be and still
	// satisfy a new request synchronously. 0 means no bound.
	MaxSampleAgeMillis int `json:"max_sample_age_ms,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	switch cfg.TrackingPower {
	case "", trackingLowPower, trackingActive:
	default:
		return utils.NewConfigValidationError(path,
			errors.Errorf("unknown tracking_power %q", cfg.TrackingPower))
	}
	if cfg.MaxSampleAgeMillis < 0 {
		return utils.NewConfigValidationError(path,
			errors.New("max_sample_age_ms must be non-negative"))
	}
	return nil
}

func (cfg *Config) trackingPower() positioning.PowerState {
	if cfg.TrackingPower == trackingActive {
		return positioning.PowerActive
	}
	return positioning.PowerLowPower
}

func (cfg *Config) maxSampleAge() time.Duration {
	return time.Duration(cfg.MaxSampleAgeMillis) * time.Millisecond
}
