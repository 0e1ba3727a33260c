package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

type DeleteCmd struct {
	flags *Flags
	app   *App

	// flags
	namespace string
	keys      []string
}

// NewDeleteCmd creates a new delete command
func NewDeleteCmd(flags *Flags, app *App) *DeleteCmd {
	return &DeleteCmd{flags: flags, app: app}
}

// Register adds the delete command to the application
func (cmd *DeleteCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "delete",
		Usage:     "Delete keys from a namespace",
		UsageText: "talsi delete -n NAMESPACE [-k KEY]... [KEY...]",
		Description: `Deletes the given keys in one transaction and prints how many live
entries were removed. Keys may be given with -k or as arguments.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "namespace",
				Aliases:     []string{"n"},
				Usage:       "namespace to delete from",
				Required:    true,
				Destination: &cmd.namespace,
			},
			&cli.StringSliceFlag{
				Name:        "key",
				Aliases:     []string{"k"},
				Usage:       "key to delete (repeatable)",
				Destination: &cmd.keys,
			},
		},
		ShellComplete: KeyCompleter(cmd.app, &cmd.namespace),
		Action:        cmd.run,
	})

	return app
}

func (cmd *DeleteCmd) run(ctx context.Context, c *cli.Command) error {
	keys := append(cmd.keys, c.Args().Slice()...)
	if len(keys) == 0 {
		return fmt.Errorf("no keys given")
	}

	s, err := cmd.app.Storage()
	if err != nil {
		return err
	}

	removed, err := s.DeleteMany(ctx, cmd.namespace, keys)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	_, _ = fmt.Fprintf(c.Root().Writer, "deleted %d\n", removed)
	return nil
}
