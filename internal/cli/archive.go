package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/valibibe/recall/internal/app"
	"github.com/valibibe/recall/internal/archive"
	"github.com/valibibe/recall/internal/notes"
)

const settlePoll = 50 * time.Millisecond

func newArchiveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <note-id>",
		Short: "Archive a note after the undo window (interrupt to cancel)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := notes.ValidateID(id); err != nil {
				return err
			}
			return withRuntime(cmd.Context(), flags, func(rt *app.Runtime) error {
				return archiveNote(cmd, rt, id)
			})
		},
	}
}

func archiveNote(cmd *cobra.Command, rt *app.Runtime, id string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	note := notes.Note{ID: id}
	if n, err := rt.Client.GetNote(ctx, id); err == nil {
		note = *n
	} else if !notes.IsConnectivity(err) {
		return fmt.Errorf("get note: %w", err)
	}

	if err := rt.Coordinator.RequestArchive(note); err != nil {
		return err
	}
	fmt.Fprintf(out, "Archiving %s in %s, interrupt to undo\n", label(note), rt.Config.UndoWindow)

	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := rt.Coordinator.Undo(context.WithoutCancel(ctx), id); err != nil && !errors.Is(err, archive.ErrNotPending) {
				return fmt.Errorf("undo: %w", err)
			}
			fmt.Fprintln(out, "Undone.")
			return nil
		case f := <-rt.Failures:
			if f.NoteID == id && f.Op == archive.OpEnqueue {
				return fmt.Errorf("queue archive of %s: %w", id, f.Err)
			}
		case <-rt.Changes:
		case <-ticker.C:
		}

		switch rt.Coordinator.State(id) {
		case archive.StateCommitted:
			fmt.Fprintf(out, "Archived %s.\n", label(note))
			return nil
		case archive.StateQueued:
			fmt.Fprintf(out, "Service unreachable; %s is queued for replay.\n", label(note))
			return nil
		case archive.StateIdle:
			return fmt.Errorf("archive %s was not applied", id)
		}
	}
}

func newUnarchiveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unarchive <note-id>",
		Short: "Restore an archived note, or drop its queued archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := notes.ValidateID(id); err != nil {
				return err
			}
			return withRuntime(cmd.Context(), flags, func(rt *app.Runtime) error {
				out := cmd.OutOrStdout()
				if rt.Queue.Contains(id) {
					if _, err := rt.Queue.Cancel(cmd.Context(), id); err != nil {
						return fmt.Errorf("cancel queued archive: %w", err)
					}
					fmt.Fprintf(out, "Dropped queued archive of %s.\n", id)
					return nil
				}
				note, err := rt.Client.Unarchive(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("unarchive: %w", err)
				}
				fmt.Fprintf(out, "Restored %s.\n", label(*note))
				return nil
			})
		},
	}
}

func label(n notes.Note) string {
	if n.Title == "" {
		return n.ID
	}
	return fmt.Sprintf("%q", n.Title)
}
