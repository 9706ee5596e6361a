package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/eev/components/board"
	// register every board model.
	_ "go.viam.com/eev/components/board/register"
	"go.viam.com/eev/components/motor/fourwire"
	"go.viam.com/eev/components/valve/eev"
	"go.viam.com/eev/config"
)

type controller struct {
	clock  clock.Clock
	logger golog.Logger
}

func (ctl *controller) readConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(flagConfig)
	if path == "" {
		cfg := config.Default()
		if err := cfg.Ensure(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Read(c.Context, path, ctl.logger)
}

// withStepper builds the board and stepper from the config and closes the board after
// fn returns.
func (ctl *controller) withStepper(
	c *cli.Context,
	fn func(ctx context.Context, cfg *config.Config, s *fourwire.Stepper) error,
) (err error) {
	cfg, err := ctl.readConfig(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	b, err := board.New(ctx, cfg.Board, ctl.logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, b.Close(ctx))
	}()

	s, err := fourwire.NewFromConfig(ctx, b, &cfg.Motor, ctl.logger)
	if err != nil {
		return err
	}
	return fn(ctx, cfg, s)
}

// withValve homes the valve built from the config before calling fn. A non-nil check
// runs against the valve config first, so it can fail without homing.
func (ctl *controller) withValve(
	c *cli.Context,
	check func(conf *eev.Config) error,
	fn func(ctx context.Context, v *eev.Valve) error,
) error {
	return ctl.withStepper(c, func(ctx context.Context, cfg *config.Config, s *fourwire.Stepper) error {
		if check != nil {
			if err := check(&cfg.Valve); err != nil {
				return err
			}
		}
		v, err := eev.New(s, cfg.Valve, ctl.clock, ctl.logger)
		if err != nil {
			return err
		}
		if err := v.Home(ctx); err != nil {
			return errors.Wrap(err, "error homing valve")
		}
		return fn(ctx, v)
	})
}

// SpinAction steps the motor forward and back the requested number of steps.
func (ctl *controller) SpinAction(c *cli.Context) error {
	style, err := fourwire.ParseStyle(c.String(spinFlagStyle))
	if err != nil {
		return err
	}
	steps := c.Int(spinFlagSteps)
	if steps < 0 {
		return errors.Errorf("--%s cannot be negative", spinFlagSteps)
	}
	delay := c.Duration(spinFlagDelay)

	return ctl.withStepper(c, func(ctx context.Context, _ *config.Config, s *fourwire.Stepper) error {
		for _, dir := range []fourwire.Direction{fourwire.Forward, fourwire.Backward} {
			ctl.logger.Debugw("spinning", "direction", dir, "style", style, "steps", steps)
			for i := 0; i < steps; i++ {
				if err := ctx.Err(); err != nil {
					return multierr.Combine(err, s.Release(context.Background()))
				}
				if _, err := s.Step(ctx, dir, style); err != nil {
					return err
				}
				ctl.clock.Sleep(delay)
			}
		}
		if err := s.Release(ctx); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "stepped %d %s and back, microstep counter at %d\n", steps, style, s.Position())
		return nil
	})
}

// HomeAction drives the valve closed.
func (ctl *controller) HomeAction(c *cli.Context) error {
	return ctl.withValve(c, nil, func(ctx context.Context, v *eev.Valve) error {
		return printPosition(c, v)
	})
}

// MoveAction homes the valve and opens it to the requested percentage.
func (ctl *controller) MoveAction(c *cli.Context) error {
	percent, speed := c.Float64(moveFlagPercent), c.Int(moveFlagSpeed)
	check := func(conf *eev.Config) error {
		return conf.CheckActuate(percent, speed)
	}
	return ctl.withValve(c, check, func(ctx context.Context, v *eev.Valve) error {
		if err := v.Actuate(percent, speed); err != nil {
			return err
		}
		if err := v.Drive(ctx); err != nil {
			return err
		}
		return printPosition(c, v)
	})
}

// SchemaAction prints the config file schema, or the attributes schema of one board model.
func (ctl *controller) SchemaAction(c *cli.Context) error {
	schema := config.Schema()
	if model := c.String(schemaFlagModel); model != "" {
		var ok bool
		if schema, ok = config.RegisteredAttributeSchemas[model]; !ok {
			return errors.Errorf("no attributes schema for board model %q", model)
		}
	}
	return printJSON(c, schema)
}

func printJSON(c *cli.Context, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(data))
	return nil
}

func printPosition(c *cli.Context, v *eev.Valve) error {
	pos, err := v.CurrentPosition()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "valve %s at position %d\n", v.CurrentDirection(), pos)
	return nil
}
