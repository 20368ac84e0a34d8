package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fpang/speech-enhancer/internal/archive"
	"github.com/fpang/speech-enhancer/internal/cli"
)

// query flags
var (
	jsonFlag        bool
	downloadOutFlag string
)

var statusCmd = &cobra.Command{
	Use:   "status <jobId>",
	Short: "Show the status of a processing job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app) error {
			report, err := a.client.GetStatus(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				return writeJSON(a, report)
			}
			fmt.Fprintf(a.out, "%s %s\n", cli.FormatProgressBar(report.Progress, 30), report.Status)
			if report.ErrorMessage != "" {
				fmt.Fprintf(a.out, "Error: %s\n", report.ErrorMessage)
			}
			return nil
		})
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results <jobId>",
	Short: "Show the enhancement metrics of a completed job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app) error {
			rs, err := a.client.GetResults(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				return writeJSON(a, rs)
			}
			return cli.WriteResults(a.out, rs)
		})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <fileId>",
	Short: "Download a processed file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app) error {
			path := downloadOutFlag
			if path == "" {
				path = "enhanced-" + args[0]
			}
			open := func(ctx context.Context) (io.ReadCloser, error) {
				return a.client.Download(ctx, args[0])
			}
			if err := downloadTo(ctx, open, args[0], path); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Written to %s\n", path)
			return nil
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the enhancement service is reachable",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app) error {
			h, err := a.client.Health(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return writeJSON(a, h)
			}
			fmt.Fprintf(a.out, "%s: %s (version %s)\n", a.client.BaseURL(), h.Status, h.Version)
			return nil
		})
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <bundle.zip>",
	Short: "Print the results stored in a result bundle",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out := os.Stdout
		summary, err := archive.ReadSummary(args[0])
		if err != nil {
			cli.HandleError(err)
		}
		if jsonFlag {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				cli.HandleError(err)
			}
			return
		}
		fmt.Fprintf(out, "Session %s, job %s, input %s\n\n", summary.SessionID, summary.JobID, summary.ArtifactName)
		if err := cli.WriteResults(out, summary.Results); err != nil {
			cli.HandleError(err)
		}
	},
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, resultsCmd, healthCmd, inspectCmd} {
		c.Flags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of a table")
	}
	downloadCmd.Flags().StringVarP(&downloadOutFlag, "out", "o", "", "Output path (default enhanced-<fileId>)")
}

// withApp builds the app, runs fn and reports any error by kind.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cmd)
	if err != nil {
		cli.HandleError(err)
	}
	defer a.Close()
	if err := fn(ctx, a); err != nil {
		a.Close()
		cli.HandleError(err)
	}
}

func writeJSON(a *app, v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
