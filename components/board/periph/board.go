// Package periph implements a board whose GPIO pins are driven through periph.io, which
// covers the common Linux single board computers.
package periph

import (
	"context"
	"fmt"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"go.viam.com/eev/components/board"
	"go.viam.com/eev/utils"
)

// Model is the name the periph board registers under.
const Model = "periph"

// A Config describes the configuration of a periph board.
type Config struct {
	// PinAliases maps the names used elsewhere in the config to periph pin names
	// such as "GPIO14".
	PinAliases map[string]string `json:"pin_aliases,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	for alias, name := range conf.PinAliases {
		if name == "" {
			return goutils.NewConfigValidationFieldRequiredError(fmt.Sprintf("%s.pin_aliases", path), alias)
		}
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

var (
	hostInitOnce sync.Once
	errHostInit  error
)

func initHost() error {
	hostInitOnce.Do(func() {
		_, errHostInit = host.Init()
	})
	return errHostInit
}

// NewBoard loads the periph host drivers and returns a board backed by them.
func NewBoard(ctx context.Context, conf board.Config, logger golog.Logger) (*Board, error) {
	newConf := &Config{}
	if conf.ConvertedAttributes != nil {
		var ok bool
		newConf, ok = conf.ConvertedAttributes.(*Config)
		if !ok {
			return nil, utils.NewUnexpectedTypeError(newConf, conf.ConvertedAttributes)
		}
	}
	if err := initHost(); err != nil {
		return nil, errors.Wrap(err, "error loading periph host drivers")
	}
	return &Board{
		aliases: newConf.PinAliases,
		pins:    map[string]*gpioPin{},
		lookup:  gpioreg.ByName,
		logger:  logger,
	}, nil
}

// A Board hands out periph GPIO pins as outputs.
type Board struct {
	mu      sync.Mutex
	aliases map[string]string
	pins    map[string]*gpioPin
	lookup  func(name string) gpio.PinIO
	logger  golog.Logger
}

// GPIOPinByName returns the GPIO pin by the given name. The pin is driven low when it is
// first acquired.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.pins[name]; ok {
		return p, nil
	}

	pinName := name
	if alias, ok := b.aliases[name]; ok {
		pinName = alias
	}
	pin := b.lookup(pinName)
	if pin == nil {
		return nil, errors.Errorf("no global pin found for %q", pinName)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, errors.Wrapf(err, "error configuring pin %q as output", pinName)
	}
	b.logger.Debugw("acquired pin", "name", name, "pin", pinName)

	p := &gpioPin{pin: pin, pinName: pinName}
	b.pins[name] = p
	return p, nil
}

// Close drives every acquired pin low.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	for _, p := range b.pins {
		err = multierr.Combine(err, p.set(false))
	}
	b.pins = map[string]*gpioPin{}
	return err
}

type gpioPin struct {
	pin     gpio.PinIO
	pinName string
}

func (gp *gpioPin) Set(ctx context.Context, high bool, extra map[string]interface{}) error {
	return gp.set(high)
}

func (gp *gpioPin) set(high bool) error {
	l := gpio.Low
	if high {
		l = gpio.High
	}
	if err := gp.pin.Out(l); err != nil {
		return errors.Wrapf(err, "error setting pin %q", gp.pinName)
	}
	return nil
}
