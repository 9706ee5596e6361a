// Package eev implements an electronic expansion valve moved by a four-wire stepper.
//
// The valve has no position sensor. Initialize assumes the worst case, that the valve
// sits max_pulses+overdrive steps open, and drives that many closing steps; the last
// overdrive steps stall against the mechanical stop. After that the valve tracks its
// position by counting the steps it issues.
//
// Motion is cooperative: callers poll Run, which issues at most one step per call and only
// once the delay of the current speed level has passed since the previous step.
package eev

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"go.viam.com/eev/components/motor/fourwire"
	"go.viam.com/eev/operation"
)

// Direction is the way the valve is travelling.
type Direction int

// Travel directions, valued by how each step changes the position.
const (
	Closing Direction = -1
	Holding Direction = 0
	Opening Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Closing:
		return "closing"
	case Holding:
		return "holding"
	case Opening:
		return "opening"
	default:
		return "unknown"
	}
}

// Stepper is the part of a stepper motor the valve drives.
type Stepper interface {
	Step(ctx context.Context, dir fourwire.Direction, style fourwire.Style) (int, error)
	Release(ctx context.Context) error
}

var _ Stepper = (*fourwire.Stepper)(nil)

// Valve tracks and moves an electronic expansion valve.
type Valve struct {
	stepper Stepper
	clock   clock.Clock
	logger  golog.Logger

	maxPulses       int
	overdrive       int
	speeds          []time.Duration
	style           fourwire.Style
	releaseWhenIdle bool
	pollInterval    time.Duration

	opMgr operation.SingleOperationManager

	mu         sync.Mutex
	known      bool
	position   int
	target     int
	direction  Direction
	speedLevel int
	nextStep   time.Time
}

// New returns a valve in the uninitialized state. A nil clock uses the system clock.
func New(stepper Stepper, conf Config, clk clock.Clock, logger golog.Logger) (*Valve, error) {
	if stepper == nil {
		return nil, errors.New("expected a stepper for the valve")
	}
	if err := conf.Validate("valve"); err != nil {
		return nil, err
	}
	speeds, err := conf.TargetSpeeds()
	if err != nil {
		return nil, err
	}
	style, err := conf.Style()
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Valve{
		stepper:         stepper,
		clock:           clk,
		logger:          logger,
		maxPulses:       conf.MaxPulses,
		overdrive:       conf.Overdrive,
		speeds:          speeds,
		style:           style,
		releaseWhenIdle: conf.ReleaseWhenIdle,
		pollInterval:    conf.PollInterval(),
	}, nil
}

// Initialize starts homing: the position is assumed to be max_pulses+overdrive and the
// target is fully closed at the slowest speed. The next Run may step right away. Calling
// it again restarts homing.
func (v *Valve) Initialize() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.known = true
	v.position = v.maxPulses + v.overdrive
	v.target = 0
	v.direction = Closing
	v.speedLevel = 0
	v.nextStep = v.clock.Now()
	v.logger.Infow("homing valve", "steps", v.position, "delay", v.speeds[0])
}

// Run issues one step toward the target if the valve is not there yet and the pacing
// delay has passed. It never blocks.
func (v *Valve) Run(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.known || v.position == v.target || v.direction == Holding {
		return nil
	}
	now := v.clock.Now()
	if now.Before(v.nextStep) {
		return nil
	}

	dir := fourwire.Forward
	if v.direction == Closing {
		dir = fourwire.Backward
	}
	if _, err := v.stepper.Step(ctx, dir, v.style); err != nil {
		return errors.Wrapf(err, "error stepping valve %s at position %d", v.direction, v.position)
	}
	v.position += int(v.direction)
	v.nextStep = now.Add(v.speeds[v.speedLevel])

	if v.position != v.target {
		return nil
	}
	v.logger.Debugw("valve reached target", "position", v.position)
	v.direction = Holding
	if v.releaseWhenIdle {
		if err := v.stepper.Release(ctx); err != nil {
			v.logger.Warnw("failed to release valve stepper", "error", err)
			return errors.Wrap(err, "error releasing valve stepper")
		}
	}
	return nil
}

// CurrentPosition returns the tracked position in steps, 0 being fully closed.
func (v *Valve) CurrentPosition() (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.known {
		return 0, ErrPositionUnknown
	}
	return v.position, nil
}

// IsClosed reports whether the valve is fully closed.
func (v *Valve) IsClosed() (bool, error) {
	pos, err := v.CurrentPosition()
	if err != nil {
		return false, err
	}
	return pos == 0, nil
}

// CurrentDirection returns the direction of the motion in progress.
func (v *Valve) CurrentDirection() Direction {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.direction
}

// IsMoving returns whether the valve still has steps to go.
func (v *Valve) IsMoving() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.known && v.position != v.target
}

// MoveTo sets a new target position, in steps from fully closed, reached at the given
// speed level by subsequent Run calls.
func (v *Valve) MoveTo(position, speedLevel int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.known {
		return ErrPositionUnknown
	}
	if position < 0 || position > v.maxPulses {
		return errors.Wrapf(ErrInvalidTarget, "%d is outside [0, %d]", position, v.maxPulses)
	}
	if speedLevel < 0 || speedLevel >= len(v.speeds) {
		return errors.Wrapf(ErrInvalidSpeedLevel, "%d", speedLevel)
	}

	v.target = position
	v.speedLevel = speedLevel
	switch {
	case position > v.position:
		v.direction = Opening
	case position < v.position:
		v.direction = Closing
	default:
		v.direction = Holding
	}
	v.nextStep = v.clock.Now()
	v.logger.Debugw("moving valve", "from", v.position, "to", position, "direction", v.direction)
	return nil
}

// Actuate moves the valve to percent of its full travel, rounded to the nearest step.
func (v *Valve) Actuate(percent float64, speedLevel int) error {
	if err := checkPercent(percent); err != nil {
		return err
	}
	return v.MoveTo(int(math.Round(percent/100*float64(v.maxPulses))), speedLevel)
}

func checkPercent(percent float64) error {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return errors.Wrapf(ErrInvalidPercentage, "got %v", percent)
	}
	return nil
}

// Stop holds the valve where it is and cancels a running Drive.
func (v *Valve) Stop(ctx context.Context) error {
	if id, ok := operation.ID(ctx); ok {
		v.logger.Debugw("stopping valve drive", "op", id)
	}
	v.opMgr.CancelRunning(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.known {
		return nil
	}
	v.target = v.position
	v.direction = Holding
	if v.releaseWhenIdle {
		return v.stepper.Release(ctx)
	}
	return nil
}

// Drive polls Run until the valve reaches its target. Cancelling ctx, or calling Stop,
// stops the valve where it is; a newer Drive takes over without stopping it.
func (v *Valve) Drive(ctx context.Context) error {
	return v.opMgr.WaitTillDone(ctx, v.pollInterval,
		func(ctx context.Context) (bool, error) {
			if err := v.Run(ctx); err != nil {
				return false, err
			}
			if v.IsMoving() {
				return false, nil
			}
			id, _ := operation.ID(ctx)
			v.logger.Debugw("valve drive finished", "op", id)
			return true, nil
		},
		v.Stop,
	)
}

// Home initializes the valve and drives it closed.
func (v *Valve) Home(ctx context.Context) error {
	v.Initialize()
	return v.Drive(ctx)
}
