package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fpang/speech-enhancer/internal/logging"
	"github.com/fpang/speech-enhancer/internal/stubserver"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Build-time version identity, injected via -ldflags:
//
//	go build -ldflags="-X main.commitHash=${COMMIT_HASH} -X main.buildTime=$(date -u +%Y%m%dT%H%M%SZ)"
var (
	commitHash = "dev"
	buildTime  = "unknown"
)

// CLI flags
var (
	portFlag    int
	stepFlag    int
	maxUploadMB int64
	originsFlag string
	requireKey  string
)

var rootCmd = &cobra.Command{
	Use:   "enhance-stub",
	Short: "Local stand-in for the speech enhancement service",
	Long: `Enhance Stub serves the enhancement service's HTTP API from memory so the
enhance CLI can be exercised without the real backend. Jobs advance by
--step percent on every status query; files whose name starts with "fail_"
fail halfway through.

Examples:
  enhance-stub
  enhance-stub --port 5050 --step 10
  enhance-stub --api-key local-secret`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVarP(&portFlag, "port", "p", 5000, "Port to listen on")
	rootCmd.Flags().IntVar(&stepFlag, "step", stubserver.DefaultProgressStep, "Progress added per status query")
	rootCmd.Flags().Int64Var(&maxUploadMB, "max-upload-mb", stubserver.DefaultMaxUploadBytes>>20, "Upload size cap in megabytes")
	rootCmd.Flags().StringVar(&originsFlag, "cors-origins", "", "Comma-separated allowed CORS origins (default: any)")
	rootCmd.Flags().StringVar(&requireKey, "api-key", os.Getenv("ENHANCER_STUB_API_KEY"), "Require this bearer token on every request")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	start := time.Now()
	logging.Init()

	opts := []stubserver.Option{
		stubserver.WithProgressStep(stepFlag),
		stubserver.WithMaxUploadBytes(maxUploadMB << 20),
	}
	if originsFlag != "" {
		var origins []string
		for _, o := range strings.Split(originsFlag, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		opts = append(opts, stubserver.WithAllowedOrigins(origins...))
	}
	if requireKey != "" {
		opts = append(opts, stubserver.WithAPIKey(requireKey))
	}

	addr := fmt.Sprintf(":%d", portFlag)
	srv := &http.Server{
		Addr:         addr,
		Handler:      stubserver.New(opts...).Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logging.NewStartupLogger("enhance-stub").
		CommitHash(commitHash).
		BuildTime(buildTime).
		Endpoint("http://localhost"+addr).
		Feature("apiKey", requireKey != "").
		Feature("cors", originsFlag != "").
		Config("progressStep", strconv.Itoa(stepFlag)).
		Config("maxUploadMB", strconv.FormatInt(maxUploadMB, 10)).
		InitDuration(time.Since(start)).
		Log()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	log.Info().Int("port", portFlag).Int("step", stepFlag).Msg("Starting enhancement stub")
	fmt.Printf("\n  Enhancement stub: http://localhost:%d\n\n", portFlag)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
