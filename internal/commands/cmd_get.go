package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

type GetCmd struct {
	flags *Flags
	app   *App

	// flags
	namespace string
	key       string
	meta      bool
}

// NewGetCmd creates a new get command
func NewGetCmd(flags *Flags, app *App) *GetCmd {
	return &GetCmd{flags: flags, app: app}
}

// Register adds the get command to the application
func (cmd *GetCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "get",
		Usage:     "Get value(s) from a namespace",
		UsageText: "talsi get -n NAMESPACE [-k KEY] [--meta]",
		Description: `Prints the value stored under KEY. Maps and lists are printed as indented
JSON and byte values are written as-is (quoted when writing to a terminal).

Without --key, every live entry of the namespace is printed as KEY<TAB>VALUE.
--meta prints the entry's timestamps and frame details instead of its value.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "namespace",
				Aliases:     []string{"n"},
				Usage:       "namespace to get values from",
				Required:    true,
				Destination: &cmd.namespace,
			},
			&cli.StringFlag{
				Name:        "key",
				Aliases:     []string{"k"},
				Usage:       "key to get (all keys of the namespace if not given)",
				Destination: &cmd.key,
			},
			&cli.BoolFlag{
				Name:        "meta",
				Usage:       "print metadata instead of the value (requires --key)",
				Destination: &cmd.meta,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *GetCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.meta && !c.IsSet("key") {
		return fmt.Errorf("--meta requires --key")
	}

	s, err := cmd.app.Storage()
	if err != nil {
		return err
	}

	out, errOut := c.Root().Writer, c.Root().ErrWriter

	if c.IsSet("key") {
		entry, found, err := s.GetEntry(ctx, cmd.namespace, cmd.key)
		if err != nil {
			return fmt.Errorf("get %q: %w", cmd.key, err)
		}
		if !found {
			return fmt.Errorf("key %q not found in namespace %q", cmd.key, cmd.namespace)
		}

		if cmd.meta {
			expires := "never"
			if entry.ExpiresAt != nil {
				expires = entry.ExpiresAt.Format(time.RFC3339Nano)
			}
			_, _ = fmt.Fprintf(out, "namespace\t%s\n", entry.Namespace)
			_, _ = fmt.Fprintf(out, "key\t%s\n", entry.Key)
			_, _ = fmt.Fprintf(out, "format\t%s\n", entry.Format)
			_, _ = fmt.Fprintf(out, "compression\t%s\n", entry.Compression)
			_, _ = fmt.Fprintf(out, "size\t%d\n", entry.Size)
			_, _ = fmt.Fprintf(out, "created\t%s\n", entry.CreatedAt.Format(time.RFC3339Nano))
			_, _ = fmt.Fprintf(out, "updated\t%s\n", entry.UpdatedAt.Format(time.RFC3339Nano))
			_, _ = fmt.Fprintf(out, "expires\t%s\n", expires)
			return nil
		}

		return writeValue(out, errOut, entry.Value)
	}

	keys, err := s.ListKeys(ctx, cmd.namespace)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	values, err := s.GetMany(ctx, cmd.namespace, keys)
	if err != nil {
		return fmt.Errorf("get values: %w", err)
	}

	for _, key := range keys {
		v, ok := values[key]
		if !ok {
			continue // expired between the two reads
		}
		_, _ = fmt.Fprintf(out, "%s\t", key)
		if err := writeValue(out, errOut, v); err != nil {
			return fmt.Errorf("print %q: %w", key, err)
		}
	}
	return nil
}
