package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/akx/talsi"
)

type StatsCmd struct {
	flags *Flags
	app   *App

	// flags
	metrics bool
}

// NewStatsCmd creates a new stats command
func NewStatsCmd(flags *Flags, app *App) *StatsCmd {
	return &StatsCmd{flags: flags, app: app}
}

// Register adds the stats command to the application
func (cmd *StatsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "stats",
		Usage:     "Show entry counts",
		UsageText: "talsi stats [--metrics]",
		Description: `Prints live and expired entry counts for the database.

--metrics also prints this process's operation counters in Prometheus text
format.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "metrics",
				Usage:       "also print operation metrics",
				Destination: &cmd.metrics,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *StatsCmd) run(ctx context.Context, c *cli.Command) error {
	s, err := cmd.app.Storage()
	if err != nil {
		return err
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	out := c.Root().Writer
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "file\t%s\n", s.Path())
	_, _ = fmt.Fprintf(w, "namespaces\t%d\n", stats.Namespaces)
	_, _ = fmt.Fprintf(w, "live entries\t%d\n", stats.LiveEntries)
	_, _ = fmt.Fprintf(w, "expired entries\t%d\n", stats.ExpiredEntries)
	_, _ = fmt.Fprintf(w, "payload bytes\t%d\n", stats.PayloadBytes)
	_ = w.Flush()

	if cmd.metrics {
		_, _ = fmt.Fprintln(out)
		talsi.WriteMetrics(out)
	}
	return nil
}
