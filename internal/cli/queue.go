package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/valibibe/recall/internal/app"
)

func newQueueCmd(flags *rootFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List archive actions waiting for replay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), flags, func(rt *app.Runtime) error {
				pending := rt.Queue.Pending()
				out := cmd.OutOrStdout()

				if format == "json" {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(pending)
				}

				if len(pending) == 0 {
					fmt.Fprintln(out, "No queued actions.")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tKIND\tNOTE\tQUEUED\tATTEMPTS")
				for _, a := range pending {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", a.ID, a.Kind, a.NoteID, a.CreatedAt.Local().Format(time.DateTime), a.Attempts)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text or json")
	return cmd
}

func newReplayCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Retry queued archive actions now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), flags, func(rt *app.Runtime) error {
				if rt.Queue.Len() == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No queued actions.")
					return nil
				}
				res, err := rt.Coordinator.Replay(cmd.Context())
				if err != nil {
					return fmt.Errorf("replay: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d replayed, %d dropped, %d still queued\n",
					len(res.Committed), len(res.Abandoned), len(res.Remaining))
				return nil
			})
		},
	}
}
