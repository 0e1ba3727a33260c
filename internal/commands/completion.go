package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// KeyCompleter returns a ShellCompleteFunc that suggests the live keys of the
// namespace held in namespace as positional completions.
//
// When the user's last typed argument starts with "-", it falls back to the
// default flag completion behavior.
func KeyCompleter(app *App, namespace *string) cli.ShellCompleteFunc {
	return func(ctx context.Context, cmd *cli.Command) {
		if args := cmd.Args(); args.Present() {
			last := args.Slice()[args.Len()-1]
			if len(last) > 0 && last[0] == '-' {
				cli.DefaultCompleteWithFlags(ctx, cmd)
				return
			}
		}

		s, err := app.Storage()
		if err != nil {
			return
		}
		keys, err := s.ListKeys(ctx, *namespace)
		if err != nil {
			return
		}

		w := cmd.Root().Writer
		for _, k := range keys {
			_, _ = fmt.Fprintln(w, k)
		}
	}
}
