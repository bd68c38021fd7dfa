// Package cli implements the recall command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/valibibe/recall/internal/app"
)

type rootFlags struct {
	configPath string
	prefsPath  string
	pollEvery  int
	ephemeral  bool
}

func (f *rootFlags) options() app.Options {
	return app.Options{
		ConfigPath: f.configPath,
		PrefsPath:  f.prefsPath,
		PollEvery:  f.pollEvery,
		Ephemeral:  f.ephemeral,
	}
}

// isTerminal is swapped in tests.
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

// NewRootCmd builds the recall command tree. Without a subcommand it starts
// the TUI.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "recall",
		Short:         "Spaced-repetition notes in the terminal",
		Long:          "recall browses notes from the notes service. Archiving is optimistic: the note disappears at once and can be undone for a few seconds; archives that cannot reach the service are queued and replayed when it comes back.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal() {
				return errors.New("the interactive UI needs a terminal; see recall --help for subcommands")
			}
			return app.Run(cmd.Context(), flags.options())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config path (default ~/.config/recall/config.toml)")
	pf.StringVar(&flags.prefsPath, "prefs", "", "preferences path (default ~/.config/recall/prefs.toml)")
	pf.IntVar(&flags.pollEvery, "poll", 0, "list refresh interval in seconds (default from config)")
	pf.BoolVar(&flags.ephemeral, "ephemeral", false, "keep the action queue in memory for this run")

	root.AddCommand(
		newQueueCmd(flags),
		newReplayCmd(flags),
		newArchiveCmd(flags),
		newUnarchiveCmd(flags),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// withRuntime opens the runtime without background work, runs fn and closes
// it again.
func withRuntime(ctx context.Context, flags *rootFlags, fn func(rt *app.Runtime) error) (err error) {
	rt, err := app.Open(ctx, flags.options())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = fmt.Errorf("close: %w", cerr)
		}
	}()
	return fn(rt)
}
