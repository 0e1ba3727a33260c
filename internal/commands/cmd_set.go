package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/akx/talsi/internal/codec"
	"github.com/akx/talsi/pkg/iojson"
)

type SetCmd struct {
	flags *Flags
	app   *App

	// flags
	namespace string
	key       string
	ttl       time.Duration
	str       string
	input     iojson.FileReader[json.RawMessage]
}

// NewSetCmd creates a new set command
func NewSetCmd(flags *Flags, app *App) *SetCmd {
	return &SetCmd{flags: flags, app: app}
}

// Register adds the set command to the application
func (cmd *SetCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "set",
		Usage:     "Store a value under a key",
		UsageText: "talsi set -n NAMESPACE -k KEY [--ttl DURATION] [--string VALUE | -i FILE]",
		Description: `Stores a value, replacing any previous one. The value is a JSON document
read from --input or stdin, or a plain string given with --string.

--ttl makes the entry expire after the given duration (for example 90s or
1h30m). Without it the entry never expires.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "namespace",
				Aliases:     []string{"n"},
				Usage:       "namespace to write to",
				Required:    true,
				Destination: &cmd.namespace,
			},
			&cli.StringFlag{
				Name:        "key",
				Aliases:     []string{"k"},
				Usage:       "key to write",
				Required:    true,
				Destination: &cmd.key,
			},
			&cli.DurationFlag{
				Name:        "ttl",
				Usage:       "expire the entry after this duration",
				Destination: &cmd.ttl,
			},
			&cli.StringFlag{
				Name:        "string",
				Aliases:     []string{"s"},
				Usage:       "store this string instead of reading JSON",
				Destination: &cmd.str,
			},
			cmd.input.Flag(),
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *SetCmd) run(ctx context.Context, c *cli.Command) error {
	if c.IsSet("string") && c.IsSet("input") {
		return fmt.Errorf("--string and --input are mutually exclusive")
	}

	value, err := cmd.value(c)
	if err != nil {
		return err
	}

	s, err := cmd.app.Storage()
	if err != nil {
		return err
	}

	if c.IsSet("ttl") {
		err = s.SetTTL(ctx, cmd.namespace, cmd.key, value, cmd.ttl)
	} else {
		err = s.Set(ctx, cmd.namespace, cmd.key, value)
	}
	if err != nil {
		return fmt.Errorf("set %q: %w", cmd.key, err)
	}
	return nil
}

func (cmd *SetCmd) value(c *cli.Command) (any, error) {
	if c.IsSet("string") {
		return cmd.str, nil
	}

	// A reader other than os.Stdin is set by callers embedding the command.
	if r := c.Root().Reader; r != nil && r != io.Reader(os.Stdin) {
		cmd.input.SetStdin(r)
	}
	raw, err := cmd.input.Read()
	if err != nil {
		return nil, err
	}

	value, err := codec.DefaultJSONBackend().DecodeValue(raw)
	if err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return value, nil
}
