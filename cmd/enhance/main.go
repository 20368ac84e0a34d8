package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Build-time version identity, injected via -ldflags:
//
//	go build -ldflags="-X main.commitHash=${COMMIT_HASH} -X main.buildTime=$(date -u +%Y%m%dT%H%M%SZ)"
//
// In development (go run), the defaults "dev" and "unknown" are used.
var (
	commitHash = "dev"
	buildTime  = "unknown"
)

// Global flags. Each overrides its ENHANCER_* variable when set.
var (
	apiURLFlag   string
	timeoutFlag  string
	historyFlag  string
	logLevelFlag string
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "enhance",
	Short: "Speech enhancement client",
	Long: `Enhance uploads a speech recording or audio file to the enhancement
service, follows the processing job until it finishes and reports the
enhancement metrics. The processed audio can be downloaded, bundled with
its metrics into a zip archive and shipped to S3.

Configuration comes from ENHANCER_* environment variables; flags override
them per command.

Examples:
  enhance run speech.wav
  enhance run --pick --out cleaned.wav
  enhance run --recording memo.wav --bundle memo.zip --archive
  enhance status 6f1c2a9e-...
  enhance history --limit 5`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURLFlag, "api-url", "", "Enhancement service base URL (ENHANCER_API_URL)")
	rootCmd.PersistentFlags().StringVar(&timeoutFlag, "http-timeout", "", "Per-request HTTP timeout, e.g. 30s (ENHANCER_HTTP_TIMEOUT)")
	rootCmd.PersistentFlags().StringVar(&historyFlag, "history", "", "History backend: sqlite, dynamo or none (ENHANCER_HISTORY)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (ENHANCER_LOG_LEVEL)")

	rootCmd.AddCommand(runCmd, statusCmd, resultsCmd, downloadCmd, healthCmd, historyCmd, inspectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
