package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/speech-enhancer/internal/archive"
	"github.com/fpang/speech-enhancer/internal/auth"
	"github.com/fpang/speech-enhancer/internal/awsboot"
	"github.com/fpang/speech-enhancer/internal/config"
	"github.com/fpang/speech-enhancer/internal/journal"
	"github.com/fpang/speech-enhancer/internal/logging"
	"github.com/fpang/speech-enhancer/internal/metrics"
	"github.com/fpang/speech-enhancer/internal/notify"
	"github.com/fpang/speech-enhancer/internal/store"
	"github.com/fpang/speech-enhancer/internal/transport"
)

// app bundles everything a command needs, built once per invocation.
type app struct {
	cfg      config.Config
	aws      *awsboot.Clients
	client   *transport.HTTPClient
	history  store.HistoryStore
	archiver *archive.S3Archiver
	out      io.Writer

	// metricsOut receives EMF lines when metrics are enabled.
	metricsOut io.Writer

	closers []func() error
}

// newApp loads configuration, applies flag overrides, creates the AWS
// clients the configuration asks for and resolves the API key.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	start := time.Now()
	logging.Init()
	if logLevelFlag != "" {
		logging.SetLevel(logLevelFlag)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := applyFlags(cmd, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clients, err := awsboot.Init(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, aws: clients, out: os.Stdout, metricsOut: os.Stdout}

	apiKey, err := resolveAPIKey(ctx, cfg, clients)
	if err != nil {
		return nil, err
	}
	a.client = transport.NewHTTPClient(cfg.APIURL,
		transport.WithAPIKey(apiKey),
		transport.WithTimeout(cfg.HTTPTimeout),
		transport.WithSessionName(cfg.SessionName),
	)

	if err := a.openHistory(); err != nil {
		return nil, err
	}
	if cfg.ArchiveBucket != "" && clients != nil {
		a.archiver = archive.NewS3Archiver(clients.S3, clients.Presigner, cfg.ArchiveBucket)
	}

	a.logStartup(cmd.Name(), apiKey != "", time.Since(start))
	return a, nil
}

// applyFlags copies explicitly set flags over the environment values.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIURL = apiURLFlag
	}
	if flags.Changed("history") {
		cfg.History = historyFlag
	}
	if flags.Changed("http-timeout") {
		d, err := time.ParseDuration(timeoutFlag)
		if err != nil {
			return fmt.Errorf("--http-timeout: %w", err)
		}
		cfg.HTTPTimeout = d
	}
	if flags.Lookup("interval") != nil && flags.Changed("interval") {
		cfg.PollInterval = intervalFlag
	}
	if flags.Lookup("max-attempts") != nil && flags.Changed("max-attempts") {
		cfg.PollMaxAttempts = maxAttemptsFlag
	}
	if flags.Lookup("session-name") != nil && flags.Changed("session-name") {
		cfg.SessionName = sessionNameFlag
	}
	return nil
}

// resolveAPIKey returns "" without error when no key is configured
// anywhere; the local stub accepts unauthenticated requests.
func resolveAPIKey(ctx context.Context, cfg config.Config, clients *awsboot.Clients) (string, error) {
	if cfg.APIKey != "" {
		return cfg.APIKey, nil
	}
	var ssmClient auth.ParameterGetter
	if clients != nil && clients.SSM != nil {
		ssmClient = clients.SSM
	}
	key, err := auth.GetAPIKey(ctx, ssmClient, cfg.SSMAPIKeyParam)
	if errors.Is(err, auth.ErrNoAPIKey) {
		log.Debug().Msg("No API key configured, sending unauthenticated requests")
		return "", nil
	}
	return key, err
}

func (a *app) openHistory() error {
	switch a.cfg.History {
	case config.HistorySQLite:
		s, err := store.OpenSQLite(a.cfg.HistoryPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		a.history = s
		a.closers = append(a.closers, s.Close)
	case config.HistoryDynamo:
		a.history = store.NewDynamoStore(a.aws.Dynamo, a.cfg.DynamoTable)
	}
	return nil
}

// sinks returns the journal sinks enabled by configuration.
func (a *app) sinks() []journal.Sink {
	var sinks []journal.Sink
	if a.history != nil {
		sinks = append(sinks, journal.HistorySink{Store: a.history})
	}
	if a.cfg.Metrics {
		sinks = append(sinks, journal.MetricsSink{Out: a.metricsOut, Namespace: metrics.DefaultNamespace})
	}
	if a.cfg.EventBus != "" && a.aws != nil && a.aws.EventBridge != nil {
		sinks = append(sinks, journal.NotifySink{Publisher: notify.NewPublisher(a.aws.EventBridge, a.cfg.EventBus)})
	}
	return sinks
}

func (a *app) logStartup(command string, hasKey bool, elapsed time.Duration) {
	sl := logging.NewStartupLogger("enhance").
		CommitHash(commitHash).
		BuildTime(buildTime).
		Endpoint(a.cfg.APIURL).
		Feature("apiKey", hasKey).
		Feature("history", a.history != nil).
		Feature("metrics", a.cfg.Metrics).
		Feature("events", a.cfg.EventBus != "").
		Feature("archive", a.archiver != nil).
		Config("command", command).
		Config("historyBackend", a.cfg.History).
		Config("pollInterval", a.cfg.PollInterval.String()).
		Config("pollMaxAttempts", strconv.Itoa(a.cfg.PollMaxAttempts)).
		Config("httpTimeout", a.cfg.HTTPTimeout.String()).
		InitDuration(elapsed)
	if a.cfg.History == config.HistorySQLite {
		sl.Config("historyPath", a.cfg.HistoryPath)
	}
	if a.cfg.History == config.HistoryDynamo {
		sl.DynamoTable("history", a.cfg.DynamoTable)
	}
	if a.cfg.SSMAPIKeyParam != "" {
		sl.SSMParam("apiKey", a.cfg.SSMAPIKeyParam)
	}
	if a.cfg.EventBus != "" {
		sl.EventBus("stateChanges", a.cfg.EventBus)
	}
	if a.cfg.ArchiveBucket != "" {
		sl.S3Bucket("archive", a.cfg.ArchiveBucket)
	}
	sl.Log()
}

// Close releases resources opened by newApp.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("Close failed")
		}
	}
}
