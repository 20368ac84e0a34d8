package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fpang/speech-enhancer/internal/apperr"
	"github.com/fpang/speech-enhancer/internal/cli"
	"github.com/fpang/speech-enhancer/internal/store"
)

var historyLimitFlag int

var historyCmd = &cobra.Command{
	Use:   "history [sessionId]",
	Short: "List finished sessions, or show one in detail",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app) error {
			if a.history == nil {
				return apperr.Input("history is disabled (ENHANCER_HISTORY=none)")
			}
			if len(args) == 1 {
				return a.showRecord(ctx, args[0])
			}
			recs, err := a.history.ListRecords(ctx, historyLimitFlag)
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}
			if jsonFlag {
				return writeJSON(a, recs)
			}
			return cli.WriteHistory(a.out, recs)
		})
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimitFlag, "limit", store.DefaultListLimit, "Maximum number of sessions to list")
	historyCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of a table")
}

func (a *app) showRecord(ctx context.Context, sessionID string) error {
	rec, err := a.history.GetRecord(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get history record: %w", err)
	}
	if rec == nil {
		return apperr.Input(fmt.Sprintf("no session %s in history", sessionID))
	}
	if jsonFlag {
		return writeJSON(a, rec)
	}

	fmt.Fprintf(a.out, "Session:  %s\n", rec.SessionID)
	fmt.Fprintf(a.out, "Input:    %s (%s)\n", rec.ArtifactName, rec.ArtifactKind)
	fmt.Fprintf(a.out, "Job:      %s (file %s)\n", rec.JobID, rec.FileID)
	fmt.Fprintf(a.out, "Outcome:  %s after %d status checks\n", rec.Outcome, rec.PollAttempts)
	if d := rec.Duration(); d > 0 {
		fmt.Fprintf(a.out, "Duration: %s\n", cli.FormatDurationShort(d))
	}
	if rec.ErrorMessage != "" {
		fmt.Fprintf(a.out, "Error:    %s: %s\n", rec.ErrorKind, rec.ErrorMessage)
	}
	if rec.Results != nil {
		fmt.Fprintln(a.out)
		return cli.WriteResults(a.out, *rec.Results)
	}
	return nil
}
