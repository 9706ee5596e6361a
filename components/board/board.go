// Package board defines the boards whose digital outputs drive stepper coils.
package board

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// A Board hands out named GPIO pins and releases them on Close.
type Board interface {
	// GPIOPinByName returns a GPIOPin by name.
	GPIOPinByName(name string) (GPIOPin, error)

	// Close releases every pin acquired from the board.
	Close(ctx context.Context) error
}

// New constructs a board of the configured model. Attributes that have not been
// converted yet are converted first.
func New(ctx context.Context, conf Config, logger golog.Logger) (Board, error) {
	reg, ok := lookup(conf.Model)
	if !ok {
		return nil, errors.Errorf("unknown board model %q", conf.Model)
	}
	if err := conf.ConvertAttributes(); err != nil {
		return nil, err
	}
	b, err := reg.Constructor(ctx, conf, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating %s board %q", conf.Model, conf.Name)
	}
	return b, nil
}
