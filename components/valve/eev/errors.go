package eev

import "github.com/pkg/errors"

var (
	// ErrPositionUnknown is returned when the position is needed before Initialize.
	ErrPositionUnknown = errors.New("valve position is unknown until it is initialized")

	// ErrInvalidTarget is returned for a target outside [0, max_pulses].
	ErrInvalidTarget = errors.New("valve target position out of range")

	// ErrInvalidSpeedLevel is returned for a speed level with no configured speed.
	ErrInvalidSpeedLevel = errors.New("no target speed for speed level")

	// ErrInvalidPercentage is returned for an opening outside [0, 100] percent.
	ErrInvalidPercentage = errors.New("percentage value must be between 0 and 100")
)
