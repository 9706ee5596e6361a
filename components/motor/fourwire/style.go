package fourwire

import (
	"strings"

	"github.com/pkg/errors"
)

// Direction is the way a single step turns the rotor.
type Direction int

// Step directions. The zero value is not a direction.
const (
	Forward Direction = iota + 1
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "unknown"
	}
}

// Style selects the coil sequence a step follows.
type Style int

// Step styles. The zero value is not a style.
const (
	// Single energizes one coil per step.
	Single Style = iota + 1
	// Double energizes two coils per step for more torque.
	Double
	// Interleave alternates single and double patterns, giving half steps.
	Interleave
)

func (s Style) String() string {
	switch s {
	case Single:
		return "single"
	case Double:
		return "double"
	case Interleave:
		return "interleave"
	default:
		return "unknown"
	}
}

// ParseStyle parses the name of a step style, ignoring case.
func ParseStyle(name string) (Style, error) {
	switch strings.ToLower(name) {
	case "single":
		return Single, nil
	case "double":
		return Double, nil
	case "interleave":
		return Interleave, nil
	default:
		return 0, errors.Wrapf(ErrInvalidStyle, "%q", name)
	}
}

// Coil patterns, bit i drives coil i (A+, A-, B+, B-).
var (
	defaultSingleSequence     = []uint8{0b0010, 0b0100, 0b0001, 0b1000}
	defaultDoubleSequence     = []uint8{0b1010, 0b0110, 0b0101, 0b1001}
	defaultInterleaveSequence = []uint8{0b1010, 0b0010, 0b0110, 0b0100, 0b0101, 0b0001, 0b1001, 0b1000}
)

// DefaultSequence returns a copy of the built-in coil sequence for style.
func DefaultSequence(style Style) ([]uint8, error) {
	var seq []uint8
	switch style {
	case Single:
		seq = defaultSingleSequence
	case Double:
		seq = defaultDoubleSequence
	case Interleave:
		seq = defaultInterleaveSequence
	default:
		return nil, errors.Wrapf(ErrInvalidStyle, "%d", int(style))
	}
	return append([]uint8(nil), seq...), nil
}
