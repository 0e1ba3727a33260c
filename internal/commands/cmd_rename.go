package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/akx/talsi"
)

type RenameCmd struct {
	flags *Flags
	app   *App

	// flags
	namespace    string
	from         string
	to           string
	overwrite    bool
	allowMissing bool
}

// NewRenameCmd creates a new rename command
func NewRenameCmd(flags *Flags, app *App) *RenameCmd {
	return &RenameCmd{flags: flags, app: app}
}

// Register adds the rename command to the application
func (cmd *RenameCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "rename",
		Usage:     "Rename a key within a namespace",
		UsageText: "talsi rename -n NAMESPACE --from KEY --to KEY [--overwrite] [--allow-missing]",
		Description: `Moves the entry under --from to --to, keeping its value and expiry.

By default the source must exist and an existing destination is an error.
--overwrite replaces the destination. --allow-missing turns both failures
into a no-op that reports nothing was renamed.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "namespace",
				Aliases:     []string{"n"},
				Usage:       "namespace of the key",
				Required:    true,
				Destination: &cmd.namespace,
			},
			&cli.StringFlag{
				Name:        "from",
				Usage:       "current key",
				Required:    true,
				Destination: &cmd.from,
			},
			&cli.StringFlag{
				Name:        "to",
				Usage:       "new key",
				Required:    true,
				Destination: &cmd.to,
			},
			&cli.BoolFlag{
				Name:        "overwrite",
				Usage:       "replace an existing destination",
				Destination: &cmd.overwrite,
			},
			&cli.BoolFlag{
				Name:        "allow-missing",
				Usage:       "skip instead of failing when the rename cannot happen",
				Destination: &cmd.allowMissing,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *RenameCmd) run(ctx context.Context, c *cli.Command) error {
	s, err := cmd.app.Storage()
	if err != nil {
		return err
	}

	opts := talsi.RenameOptions{Overwrite: cmd.overwrite, MustExist: !cmd.allowMissing}
	renamed, err := s.RenameKey(ctx, cmd.namespace, cmd.from, cmd.to, opts)
	switch {
	case errors.Is(err, talsi.ErrKeyNotFound):
		return fmt.Errorf("key %q not found in namespace %q", cmd.from, cmd.namespace)
	case errors.Is(err, talsi.ErrKeyExists):
		return fmt.Errorf("key %q already exists in namespace %q; use --overwrite to replace it", cmd.to, cmd.namespace)
	case err != nil:
		return fmt.Errorf("rename: %w", err)
	}

	if renamed {
		_, _ = fmt.Fprintf(c.Root().Writer, "renamed %s -> %s\n", cmd.from, cmd.to)
	} else {
		_, _ = fmt.Fprintln(c.Root().Writer, "nothing renamed")
	}
	return nil
}
