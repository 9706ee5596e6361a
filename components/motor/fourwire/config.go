package fourwire

import (
	"fmt"

	"go.viam.com/utils"
)

// PinConfig names the board pins wired to the coil driver inputs.
type PinConfig struct {
	A1 string `json:"a1"` // A+
	A2 string `json:"a2"` // A-
	B1 string `json:"b1"` // B+
	B2 string `json:"b2"` // B-
}

// Config describes a four-wire stepper. Omitted sequences use the built-in ones.
type Config struct {
	Pins               PinConfig `json:"pins"`
	SingleSequence     []int     `json:"single_sequence,omitempty"`
	DoubleSequence     []int     `json:"double_sequence,omitempty"`
	InterleaveSequence []int     `json:"interleave_sequence,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	pinsPath := fmt.Sprintf("%s.%s", path, "pins")
	for _, p := range []struct{ field, name string }{
		{"a1", conf.Pins.A1},
		{"a2", conf.Pins.A2},
		{"b1", conf.Pins.B1},
		{"b2", conf.Pins.B2},
	} {
		if p.name == "" {
			return utils.NewConfigValidationFieldRequiredError(pinsPath, p.field)
		}
	}
	if _, err := conf.Sequences(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// Sequences converts the configured sequence overrides.
func (conf *Config) Sequences() (Sequences, error) {
	var seqs Sequences
	var err error
	if seqs.Single, err = toPatterns(Single, conf.SingleSequence); err != nil {
		return Sequences{}, err
	}
	if seqs.Double, err = toPatterns(Double, conf.DoubleSequence); err != nil {
		return Sequences{}, err
	}
	if seqs.Interleave, err = toPatterns(Interleave, conf.InterleaveSequence); err != nil {
		return Sequences{}, err
	}
	return seqs, nil
}

func toPatterns(style Style, values []int) ([]uint8, error) {
	if values == nil {
		return nil, nil
	}
	patterns := make([]uint8, 0, len(values))
	for i, v := range values {
		if v < 0 || v > maxPattern {
			return nil, NewInvalidSequenceError(style, fmt.Sprintf("entry %d (%d) is outside [0, %d]", i, v, maxPattern))
		}
		patterns = append(patterns, uint8(v))
	}
	if err := validateSequence(style, patterns); err != nil {
		return nil, err
	}
	return patterns, nil
}

func validateSequence(style Style, seq []uint8) error {
	if len(seq) == 0 {
		return NewInvalidSequenceError(style, "empty")
	}
	for i, p := range seq {
		if p > maxPattern {
			return NewInvalidSequenceError(style, fmt.Sprintf("entry %d (%#b) does not fit in %d coils", i, p, numCoils))
		}
	}
	return nil
}
