// Package fake implements a fake board that keeps pin levels in memory.
package fake

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/eev/components/board"
	"go.viam.com/eev/utils"
)

// Model is the name the fake board registers under.
const Model = "fake"

// A Config describes the configuration of a fake board.
type Config struct {
	// Pins are created up front; other names are still created on demand.
	Pins    []string `json:"pins,omitempty"`
	FailNew bool     `json:"fail_new,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.FailNew {
		return errors.New("whoops")
	}
	return nil
}

func init() {
	board.Register(Model, board.Registration{
		Constructor: func(ctx context.Context, conf board.Config, logger golog.Logger) (board.Board, error) {
			return NewBoard(ctx, conf, logger)
		},
		AttributeMapConverter: func(attributes map[string]interface{}) (interface{}, error) {
			var conf Config
			return utils.TransformAttributeMapToStruct(&conf, attributes)
		},
	})
}

// NewBoard returns a new fake board.
func NewBoard(ctx context.Context, conf board.Config, logger golog.Logger) (*Board, error) {
	b := &Board{
		GPIOPins: map[string]*GPIOPin{},
		logger:   logger,
	}
	if conf.ConvertedAttributes == nil {
		return b, nil
	}
	newConf, ok := conf.ConvertedAttributes.(*Config)
	if !ok {
		return nil, utils.NewUnexpectedTypeError(newConf, conf.ConvertedAttributes)
	}
	if newConf.FailNew {
		return nil, errors.New("whoops")
	}
	for _, name := range newConf.Pins {
		b.GPIOPins[name] = &GPIOPin{}
	}
	return b, nil
}

// A Board provides dummy GPIO pins.
type Board struct {
	mu       sync.Mutex
	GPIOPins map[string]*GPIOPin
	logger   golog.Logger

	closed bool
}

// GPIOPinByName returns the GPIO pin by the given name, creating it if needed.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	return b.Pin(name)
}

// Pin is GPIOPinByName with the concrete pin type, for inspection in tests.
func (b *Board) Pin(name string) (*GPIOPin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("board is closed")
	}
	p, ok := b.GPIOPins[name]
	if !ok {
		p = &GPIOPin{}
		b.GPIOPins[name] = p
	}
	return p, nil
}

// Close drives every pin low.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.GPIOPins {
		p.mu.Lock()
		p.high = false
		p.mu.Unlock()
	}
	b.closed = true
	return nil
}

// A GPIOPin reports back what it was set to and how many times.
type GPIOPin struct {
	mu   sync.Mutex
	high bool
	err  error

	writes atomic.Int64
}

// Set sets the pin to either low or high.
func (gp *GPIOPin) Set(ctx context.Context, high bool, extra map[string]interface{}) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if gp.err != nil {
		return gp.err
	}
	gp.high = high
	gp.writes.Inc()
	return nil
}

// Get gets the high/low state of the pin.
func (gp *GPIOPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	return gp.high, nil
}

// High is Get without the ceremony.
func (gp *GPIOPin) High() bool {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	return gp.high
}

// Writes returns how many successful Set calls the pin has seen.
func (gp *GPIOPin) Writes() int {
	return int(gp.writes.Load())
}

// SetErr makes every following Set fail with err. A nil err clears it.
func (gp *GPIOPin) SetErr(err error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	gp.err = err
}
