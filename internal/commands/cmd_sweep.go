package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

type SweepCmd struct {
	flags *Flags
	app   *App
}

// NewSweepCmd creates a new sweep command
func NewSweepCmd(flags *Flags, app *App) *SweepCmd {
	return &SweepCmd{flags: flags, app: app}
}

// Register adds the sweep command to the application
func (cmd *SweepCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "sweep",
		Usage:       "Remove expired entries",
		UsageText:   "talsi sweep",
		Description: `Physically deletes expired entries. Expired entries are already invisible to reads; sweeping reclaims their space.`,
		Action:      cmd.run,
	})

	return app
}

func (cmd *SweepCmd) run(ctx context.Context, c *cli.Command) error {
	s, err := cmd.app.Storage()
	if err != nil {
		return err
	}

	swept, err := s.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	_, _ = fmt.Fprintf(c.Root().Writer, "swept %d expired entries\n", swept)
	return nil
}
