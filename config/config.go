// Package config defines the structures to configure a valve controller and the parts
// it is wired to.
package config

import (
	"github.com/invopop/jsonschema"

	"go.viam.com/eev/components/board"
	"go.viam.com/eev/components/board/fake"
	"go.viam.com/eev/components/board/gpiochip"
	"go.viam.com/eev/components/board/periph"
	"go.viam.com/eev/components/motor/fourwire"
	"go.viam.com/eev/components/valve/eev"
)

// Config describes the board, the stepper on it, and the valve the stepper moves.
type Config struct {
	ConfigFilePath string `json:"-"`

	Board board.Config    `json:"board"`
	Motor fourwire.Config `json:"motor"`
	Valve eev.Config      `json:"valve"`
}

// every section type is named Config, so definitions are inlined rather than referenced.
var reflector = &jsonschema.Reflector{DoNotReference: true}

// RegisteredAttributeSchemas maps board models to the JSON schema of their attributes.
var RegisteredAttributeSchemas = map[string]*jsonschema.Schema{
	fake.Model:     reflector.Reflect(&fake.Config{}),
	gpiochip.Model: reflector.Reflect(&gpiochip.Config{}),
	periph.Model:   reflector.Reflect(&periph.Config{}),
}

// Default returns a config on a fake board, which is handy for trying things out without
// hardware.
func Default() *Config {
	return &Config{
		Board: board.Config{
			Name:  "board",
			Model: fake.Model,
			Attributes: map[string]interface{}{
				"pins": []interface{}{"IO14", "IO13", "IO12", "IO11"},
			},
		},
		Motor: fourwire.Config{
			Pins: fourwire.PinConfig{A1: "IO14", A2: "IO13", B1: "IO12", B2: "IO11"},
		},
		Valve: eev.Config{
			MaxPulses: 480,
			Overdrive: 48,
		},
	}
}

// Ensure converts the board attributes and validates every section.
func (c *Config) Ensure() error {
	if err := c.Board.ConvertAttributes(); err != nil {
		return err
	}
	if err := c.Board.Validate("board"); err != nil {
		return err
	}
	if err := c.Motor.Validate("motor"); err != nil {
		return err
	}
	return c.Valve.Validate("valve")
}

// Schema returns the JSON schema of a config file.
func Schema() *jsonschema.Schema {
	return reflector.Reflect(&Config{})
}
