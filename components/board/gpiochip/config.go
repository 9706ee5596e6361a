// Package gpiochip implements a board whose pins are lines of a Linux GPIO character
// device, driven through the kernel's ioctl interface.
package gpiochip

import (
	"fmt"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Model is the name the gpiochip board registers under.
const Model = "gpiochip"

// DefaultDevicePath is the GPIO character device used when none is configured.
const DefaultDevicePath = "/dev/gpiochip0"

// A Config describes the configuration of a gpiochip board.
type Config struct {
	DevicePath string `json:"device_path,omitempty"`
	// Lines maps pin names to line offsets on the chip. Names that are not listed are
	// parsed as offsets.
	Lines map[string]int `json:"lines,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	for name, offset := range conf.Lines {
		if offset < 0 {
			return utils.NewConfigValidationError(fmt.Sprintf("%s.lines", path),
				errors.Errorf("line offset of %q cannot be negative, got %d", name, offset))
		}
	}
	return nil
}

func (conf *Config) devicePath() string {
	if conf.DevicePath == "" {
		return DefaultDevicePath
	}
	return conf.DevicePath
}
