// Package fourwire drives a four-wire stepper motor (bipolar, or unipolar wired as
// bipolar) by switching its coil driver inputs through GPIO pins.
//
// Every step moves a signed microstep counter by one and energizes the coils with the
// entry of the selected style's sequence at counter mod len(sequence). Styles can be
// mixed freely; the counter is shared, so a new style picks up whatever phase the counter
// lands on.
package fourwire

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/eev/components/board"
)

const (
	numCoils   = 4
	maxPattern = 1<<numCoils - 1
)

// Sequences overrides the built-in coil sequences. A nil entry keeps the default, an
// empty one is rejected.
type Sequences struct {
	Single     []uint8
	Double     []uint8
	Interleave []uint8
}

// A Stepper sequences the coils of one motor. It is not safe for concurrent use.
type Stepper struct {
	coils     [numCoils]board.GPIOPin
	sequences map[Style][]uint8
	logger    golog.Logger

	// active is nil until the first step, which keeps every coil off.
	active    []uint8
	microstep int
}

// NewStepper returns a stepper driving coils (A+, A-, B+, B-) and de-energizes them.
func NewStepper(ctx context.Context, coils [numCoils]board.GPIOPin, seqs Sequences, logger golog.Logger) (*Stepper, error) {
	for i, c := range coils {
		if c == nil {
			return nil, errors.Errorf("coil %d has no pin", i)
		}
	}

	s := &Stepper{
		coils:     coils,
		sequences: make(map[Style][]uint8, 3),
		logger:    logger,
	}
	for _, o := range []struct {
		style    Style
		override []uint8
	}{
		{Single, seqs.Single},
		{Double, seqs.Double},
		{Interleave, seqs.Interleave},
	} {
		seq, err := DefaultSequence(o.style)
		if err != nil {
			return nil, err
		}
		if o.override != nil {
			if err := validateSequence(o.style, o.override); err != nil {
				return nil, err
			}
			seq = append([]uint8(nil), o.override...)
		}
		s.sequences[o.style] = seq
	}

	if err := s.updateCoils(ctx); err != nil {
		return nil, errors.Wrap(err, "error de-energizing coils")
	}
	return s, nil
}

// NewFromConfig acquires the configured pins from b and returns a stepper on them.
func NewFromConfig(ctx context.Context, b board.Board, conf *Config, logger golog.Logger) (*Stepper, error) {
	if b == nil {
		return nil, errors.New("expected a board for the stepper")
	}
	if err := conf.Validate("motor"); err != nil {
		return nil, err
	}
	seqs, err := conf.Sequences()
	if err != nil {
		return nil, err
	}

	var coils [numCoils]board.GPIOPin
	for i, name := range []string{conf.Pins.A1, conf.Pins.A2, conf.Pins.B1, conf.Pins.B2} {
		if coils[i], err = b.GPIOPinByName(name); err != nil {
			return nil, errors.Wrapf(err, "error getting coil pin %q", name)
		}
	}
	return NewStepper(ctx, coils, seqs, logger)
}

// Step moves one step in dir using style's sequence and returns the new microstep
// counter. An invalid direction or style leaves the stepper untouched.
func (s *Stepper) Step(ctx context.Context, dir Direction, style Style) (int, error) {
	seq, ok := s.sequences[style]
	if !ok {
		return s.microstep, errors.Wrapf(ErrInvalidStyle, "%d", int(style))
	}

	var delta int
	switch dir {
	case Forward:
		delta = 1
	case Backward:
		delta = -1
	default:
		return s.microstep, errors.Wrapf(ErrInvalidDirection, "%d", int(dir))
	}

	s.active = seq
	s.microstep += delta
	return s.microstep, s.updateCoils(ctx)
}

// Release de-energizes every coil so the rotor spins freely. The microstep counter and
// the active sequence are kept, so the next step resumes where the last one left off.
func (s *Stepper) Release(ctx context.Context) error {
	var err error
	for i, coil := range s.coils {
		if errSet := coil.Set(ctx, false, nil); errSet != nil {
			s.logger.Warnw("failed to release coil", "coil", i, "error", errSet)
			err = multierr.Combine(err, errors.Wrapf(errSet, "error releasing coil %d", i))
		}
	}
	if err == nil {
		s.logger.Debugw("released coils", "microstep", s.microstep)
	}
	return err
}

// Position returns the microstep counter.
func (s *Stepper) Position() int {
	return s.microstep
}

// Pattern returns the coil pattern of the last step, 0 before the first one.
func (s *Stepper) Pattern() uint8 {
	if s.active == nil {
		return 0
	}
	return s.active[floorMod(s.microstep, len(s.active))]
}

func (s *Stepper) updateCoils(ctx context.Context) error {
	pattern := s.Pattern()
	for i, coil := range s.coils {
		if err := coil.Set(ctx, pattern>>i&1 == 1, nil); err != nil {
			s.logger.Warnw("failed to set coil", "coil", i, "pattern", pattern, "microstep", s.microstep, "error", err)
			return errors.Wrapf(err, "error setting coil %d", i)
		}
	}
	return nil
}

// floorMod is a mod n for n > 0, always in [0, n).
func floorMod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}
