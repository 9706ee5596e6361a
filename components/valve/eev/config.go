package eev

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/eev/components/motor/fourwire"
)

const (
	defaultPollInterval = time.Millisecond
	// maxSpeedSec bounds a configured step delay, a day between steps.
	maxSpeedSec = 24 * 60 * 60
)

// DefaultTargetSpeeds are the inter-step delays used when none are configured: 30 steps
// per second for homing and 80 steps per second for normal moves.
var DefaultTargetSpeeds = []time.Duration{time.Second / 30, time.Second / 80}

// Config describes an electronic expansion valve.
type Config struct {
	// MaxPulses is the travel from fully closed to fully open, in steps.
	MaxPulses int `json:"max_pulses"`
	// Overdrive is how many extra closing steps homing drives past zero.
	Overdrive int `json:"overdrive"`
	// TargetSpeedsSec are delays between steps in seconds, indexed by speed level.
	TargetSpeedsSec []float64 `json:"target_speeds_sec,omitempty"`
	StepStyle       string    `json:"step_style,omitempty"`
	ReleaseWhenIdle bool      `json:"release_when_idle,omitempty"`
	PollIntervalMs  float64   `json:"poll_interval_ms,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.MaxPulses == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "max_pulses")
	}
	if conf.MaxPulses < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("max_pulses must be positive, got %d", conf.MaxPulses))
	}
	if conf.Overdrive < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("overdrive cannot be negative, got %d", conf.Overdrive))
	}
	if _, err := conf.TargetSpeeds(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if _, err := conf.Style(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if conf.PollIntervalMs < 0 {
		return utils.NewConfigValidationError(path, errors.New("poll_interval_ms cannot be negative"))
	}
	return nil
}

// TargetSpeeds returns the configured delays between steps, or DefaultTargetSpeeds when
// none are set.
func (conf *Config) TargetSpeeds() ([]time.Duration, error) {
	if conf.TargetSpeedsSec == nil {
		return append([]time.Duration(nil), DefaultTargetSpeeds...), nil
	}
	if len(conf.TargetSpeedsSec) == 0 {
		return nil, errors.New("target_speeds_sec cannot be empty")
	}
	speeds := make([]time.Duration, 0, len(conf.TargetSpeedsSec))
	for i, s := range conf.TargetSpeedsSec {
		if math.IsNaN(s) || s <= 0 || s > maxSpeedSec {
			return nil, errors.Errorf("target_speeds_sec[%d] must be positive and at most %v, got %v", i, maxSpeedSec, s)
		}
		d := time.Duration(s * float64(time.Second))
		if d <= 0 {
			return nil, errors.Errorf("target_speeds_sec[%d] is shorter than a nanosecond, got %v", i, s)
		}
		speeds = append(speeds, d)
	}
	return speeds, nil
}

// CheckActuate returns the error Actuate would return for percent and speedLevel on a
// valve built from conf, without needing the valve or its position.
func (conf *Config) CheckActuate(percent float64, speedLevel int) error {
	if err := checkPercent(percent); err != nil {
		return err
	}
	speeds, err := conf.TargetSpeeds()
	if err != nil {
		return err
	}
	if speedLevel < 0 || speedLevel >= len(speeds) {
		return errors.Wrapf(ErrInvalidSpeedLevel, "%d", speedLevel)
	}
	return nil
}

// Style returns the step style, Single unless configured.
func (conf *Config) Style() (fourwire.Style, error) {
	if conf.StepStyle == "" {
		return fourwire.Single, nil
	}
	return fourwire.ParseStyle(conf.StepStyle)
}

// PollInterval is how often Drive polls Run.
func (conf *Config) PollInterval() time.Duration {
	if conf.PollIntervalMs == 0 {
		return defaultPollInterval
	}
	return time.Duration(conf.PollIntervalMs * float64(time.Millisecond))
}
