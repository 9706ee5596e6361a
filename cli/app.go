// Package cli contains the eevctl command line app, which drives a valve from a host.
package cli

import (
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	// Flags.
	flagConfig = "config"
	flagDebug  = "debug"
	flagQuiet  = "quiet"

	spinFlagSteps   = "steps"
	spinFlagDelay   = "delay"
	spinFlagStyle   = "style"
	moveFlagPercent = "percent"
	moveFlagSpeed   = "speed"
	schemaFlagModel = "model"
)

// NewApp returns a new app with the eevctl commands, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	ctl := &controller{clock: clock.New()}

	return &cli.App{
		Name:            "eevctl",
		Usage:           "drive a four-wire stepper and the expansion valve on it",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`, a fake board is used when omitted",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  flagQuiet,
				Usage: "disable logging",
			},
		},
		Before: func(c *cli.Context) error {
			switch {
			case c.Bool(flagDebug):
				ctl.logger = golog.NewDebugLogger("eevctl")
			case c.Bool(flagQuiet):
				ctl.logger = zap.NewNop().Sugar()
			default:
				ctl.logger = golog.NewDevelopmentLogger("eevctl")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "spin",
				Usage: "step the motor forward, then back, then release it",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  spinFlagSteps,
						Value: 2048,
						Usage: "steps to take in each direction",
					},
					&cli.DurationFlag{
						Name:  spinFlagDelay,
						Value: 10 * time.Millisecond,
						Usage: "delay between steps",
					},
					&cli.StringFlag{
						Name:  spinFlagStyle,
						Value: "single",
						Usage: "step style: single, double or interleave",
					},
				},
				Action: ctl.SpinAction,
			},
			{
				Name:   "home",
				Usage:  "drive the valve fully closed",
				Action: ctl.HomeAction,
			},
			{
				Name:  "move",
				Usage: "home the valve, then open it to a percentage of its travel",
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:     moveFlagPercent,
						Required: true,
						Usage:    "opening between 0 and 100",
					},
					&cli.IntFlag{
						Name:  moveFlagSpeed,
						Usage: "speed level, an index into target_speeds_sec",
					},
				},
				Action: ctl.MoveAction,
			},
			{
				Name:  "schema",
				Usage: "print the JSON schema of the config file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  schemaFlagModel,
						Usage: "print the attributes schema of a board `MODEL` instead",
					},
				},
				Action: ctl.SchemaAction,
			},
		},
	}
}
