package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

type ListNamespacesCmd struct {
	flags *Flags
	app   *App
}

// NewListNamespacesCmd creates a new list-namespaces command
func NewListNamespacesCmd(flags *Flags, app *App) *ListNamespacesCmd {
	return &ListNamespacesCmd{flags: flags, app: app}
}

// Register adds the list-namespaces command to the application
func (cmd *ListNamespacesCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "list-namespaces",
		Usage:     "List all namespaces in the database",
		UsageText: "talsi list-namespaces",
		Description: `Prints every namespace holding at least one live entry, one per line,
in sorted order.`,
		Action: cmd.run,
	})

	return app
}

func (cmd *ListNamespacesCmd) run(ctx context.Context, c *cli.Command) error {
	s, err := cmd.app.Storage()
	if err != nil {
		return err
	}

	namespaces, err := s.ListNamespaces(ctx)
	if err != nil {
		return fmt.Errorf("list namespaces: %w", err)
	}

	out := c.Root().Writer
	for _, ns := range namespaces {
		_, _ = fmt.Fprintln(out, ns)
	}
	return nil
}
