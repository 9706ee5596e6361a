//go:build linux

package gpiochip

import (
	"context"
	"strconv"
	"sync"

	"github.com/edaniels/golog"
	"github.com/mkch/gpio"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/eev/components/board"
	"go.viam.com/eev/utils"
)

const consumer = "eev"

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

type line interface {
	SetValue(value byte) error
	Close() error
}

// NewBoard returns a board on the configured GPIO chip. Lines are requested as outputs the
// first time they are asked for.
func NewBoard(ctx context.Context, conf board.Config, logger golog.Logger) (*Board, error) {
	newConf := &Config{}
	if conf.ConvertedAttributes != nil {
		var ok bool
		newConf, ok = conf.ConvertedAttributes.(*Config)
		if !ok {
			return nil, utils.NewUnexpectedTypeError(newConf, conf.ConvertedAttributes)
		}
	}
	devicePath := newConf.devicePath()
	return &Board{
		offsets: newConf.Lines,
		pins:    map[string]*gpioPin{},
		open: func(offset uint32) (line, error) {
			chip, err := gpio.OpenChip(devicePath)
			if err != nil {
				return nil, err
			}
			defer goutils.UncheckedErrorFunc(chip.Close)

			// starts low
			l, err := chip.OpenLine(offset, 0, gpio.Output, consumer)
			if err != nil {
				return nil, err
			}
			return l, nil
		},
		logger: logger,
	}, nil
}

// A Board hands out lines of one GPIO chip as output pins.
type Board struct {
	mu      sync.Mutex
	offsets map[string]int
	pins    map[string]*gpioPin
	open    func(offset uint32) (line, error)
	logger  golog.Logger
}

// GPIOPinByName returns the GPIO pin by the given name.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.pins[name]; ok {
		return p, nil
	}
	offset, ok := b.offsets[name]
	if !ok {
		parsed, err := strconv.ParseUint(name, 10, 32)
		if err != nil {
			return nil, errors.Errorf("no line configured for pin %q", name)
		}
		offset = int(parsed)
	}

	l, err := b.open(uint32(offset))
	if err != nil {
		return nil, errors.Wrapf(err, "error opening line %d for pin %q", offset, name)
	}
	b.logger.Debugw("opened line", "name", name, "offset", offset)

	p := &gpioPin{line: l, offset: offset}
	b.pins[name] = p
	return p, nil
}

// Close drives every opened line low and releases it.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	for _, p := range b.pins {
		err = multierr.Combine(err, p.close())
	}
	b.pins = map[string]*gpioPin{}
	return err
}

type gpioPin struct {
	mu     sync.Mutex
	line   line
	offset int
}

func (gp *gpioPin) Set(ctx context.Context, high bool, extra map[string]interface{}) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	var value byte
	if high {
		value = 1
	}
	if err := gp.line.SetValue(value); err != nil {
		return errors.Wrapf(err, "error setting line %d", gp.offset)
	}
	return nil
}

func (gp *gpioPin) close() error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	return multierr.Combine(gp.line.SetValue(0), gp.line.Close())
}
