package commands

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/urfave/cli/v3"

	"github.com/akx/talsi"
)

type ListKeysCmd struct {
	flags *Flags
	app   *App

	// flags
	namespace string
	like      string
	glob      string
}

// NewListKeysCmd creates a new list-keys command
func NewListKeysCmd(flags *Flags, app *App) *ListKeysCmd {
	return &ListKeysCmd{flags: flags, app: app}
}

// Register adds the list-keys command to the application
func (cmd *ListKeysCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "list-keys",
		Usage:     "List keys in a namespace or all namespaces",
		UsageText: "talsi list-keys [-n NAMESPACE] [--like PATTERN] [--glob PATTERN]",
		Description: `Prints the live keys of a namespace, one per line. Without --namespace,
every namespace is listed as NAMESPACE<TAB>KEY lines.

--like filters with an SQL LIKE pattern (% and _ wildcards, ASCII
case-insensitive). --glob filters with a shell glob such as 'user/**'.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "namespace",
				Aliases:     []string{"n"},
				Usage:       "namespace to list keys from (all namespaces if not given)",
				Destination: &cmd.namespace,
			},
			&cli.StringFlag{
				Name:        "like",
				Usage:       "only keys matching this LIKE pattern",
				Destination: &cmd.like,
			},
			&cli.StringFlag{
				Name:        "glob",
				Usage:       "only keys matching this glob pattern",
				Destination: &cmd.glob,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ListKeysCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.glob != "" && !doublestar.ValidatePattern(cmd.glob) {
		return fmt.Errorf("invalid glob pattern %q", cmd.glob)
	}

	s, err := cmd.app.Storage()
	if err != nil {
		return err
	}

	namespaces := []string{cmd.namespace}
	if !c.IsSet("namespace") {
		namespaces, err = s.ListNamespaces(ctx)
		if err != nil {
			return fmt.Errorf("list namespaces: %w", err)
		}
	}

	out := c.Root().Writer
	for _, ns := range namespaces {
		keys, err := cmd.keys(ctx, s, ns)
		if err != nil {
			return fmt.Errorf("list keys of %q: %w", ns, err)
		}
		for _, key := range keys {
			if c.IsSet("namespace") {
				_, _ = fmt.Fprintln(out, key)
			} else {
				_, _ = fmt.Fprintf(out, "%s\t%s\n", ns, key)
			}
		}
	}
	return nil
}

func (cmd *ListKeysCmd) keys(ctx context.Context, s *talsi.Storage, ns string) ([]string, error) {
	var (
		keys []string
		err  error
	)
	if cmd.like != "" {
		keys, err = s.ListKeysLike(ctx, ns, cmd.like)
	} else {
		keys, err = s.ListKeys(ctx, ns)
	}
	if err != nil || cmd.glob == "" {
		return keys, err
	}

	matched := keys[:0]
	for _, key := range keys {
		if ok, _ := doublestar.Match(cmd.glob, key); ok {
			matched = append(matched, key)
		}
	}
	return matched, nil
}
