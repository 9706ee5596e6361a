package fourwire

import "github.com/pkg/errors"

var (
	// ErrInvalidStyle is returned for a step style other than Single, Double or Interleave.
	ErrInvalidStyle = errors.New("unsupported step style")

	// ErrInvalidDirection is returned for a direction other than Forward or Backward.
	ErrInvalidDirection = errors.New("unsupported step direction")
)

// NewInvalidSequenceError is returned when a coil sequence cannot be used.
func NewInvalidSequenceError(style Style, reason string) error {
	return errors.Errorf("invalid %s coil sequence: %s", style, reason)
}
