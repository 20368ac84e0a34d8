package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/speech-enhancer/internal/apperr"
	"github.com/fpang/speech-enhancer/internal/archive"
	"github.com/fpang/speech-enhancer/internal/audio"
	"github.com/fpang/speech-enhancer/internal/cli"
	"github.com/fpang/speech-enhancer/internal/domain"
	"github.com/fpang/speech-enhancer/internal/journal"
	"github.com/fpang/speech-enhancer/internal/session"
)

// run flags
var (
	recordingFlag   string
	pickFlag        bool
	sessionNameFlag string
	outFlag         string
	bundleFlag      string
	archiveFlag     bool
	intervalFlag    time.Duration
	maxAttemptsFlag int
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Enhance one audio file or recording",
	Long: `Run uploads the input, starts an enhancement job, shows progress until the
job finishes and prints the enhancement metrics.

The input is a file argument, a WAV recording (--recording), a file chosen
in a native dialog (--pick), or a path typed at the prompt. Ctrl-C cancels
the job and resets the session.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&recordingFlag, "recording", "", "Submit a WAV recording through the recording endpoints")
	runCmd.Flags().BoolVar(&pickFlag, "pick", false, "Choose the input file in a native file dialog")
	runCmd.Flags().StringVar(&sessionNameFlag, "session-name", "", "Session name sent with uploads (ENHANCER_SESSION_NAME)")
	runCmd.Flags().StringVarP(&outFlag, "out", "o", "", "Write the enhanced audio to this path")
	runCmd.Flags().StringVar(&bundleFlag, "bundle", "", "Write a zip bundle of the enhanced audio and results.json")
	runCmd.Flags().BoolVar(&archiveFlag, "archive", false, "Upload the bundle to ENHANCER_ARCHIVE_BUCKET")
	runCmd.Flags().DurationVar(&intervalFlag, "interval", 500*time.Millisecond, "Wait between status queries (ENHANCER_POLL_INTERVAL)")
	runCmd.Flags().IntVar(&maxAttemptsFlag, "max-attempts", 30, "Status queries before giving up (ENHANCER_POLL_MAX_ATTEMPTS)")
}

func runRun(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		cli.HandleError(err)
	}
	defer a.Close()

	if archiveFlag && a.archiver == nil {
		cli.HandleError(apperr.Input("--archive needs ENHANCER_ARCHIVE_BUCKET"))
	}

	artifact, err := acquireArtifact(args)
	if err != nil {
		cli.HandleError(err)
	}

	ctrl, final, err := a.enhance(ctx, artifact)
	if err != nil {
		if errors.Is(err, session.ErrCanceled) || errors.Is(err, context.Canceled) {
			fmt.Fprintln(a.out, "\nCanceled.")
			return
		}
		cli.HandleError(err)
	}

	if err := a.deliver(ctx, ctrl, final, outputs{out: outFlag, bundle: bundleFlag, archive: archiveFlag}); err != nil {
		cli.HandleError(err)
	}
}

// acquireArtifact resolves the input from the flags, the argument or a prompt.
func acquireArtifact(args []string) (domain.InputArtifact, error) {
	if recordingFlag != "" {
		return audio.LoadRecording(recordingFlag)
	}

	var path string
	switch {
	case len(args) == 1:
		path = args[0]
	case pickFlag:
		picked, err := audio.PickFile()
		if err != nil {
			if errors.Is(err, audio.ErrPickCanceled) {
				return domain.InputArtifact{}, apperr.Input("no file selected")
			}
			return domain.InputArtifact{}, err
		}
		path = picked
	default:
		path = cli.PromptForFile(os.Stdin, os.Stdout)
		if path == "" {
			return domain.InputArtifact{}, apperr.Input("no input file given")
		}
	}

	resolved, err := cli.ValidateAndResolveFile(path)
	if err != nil {
		return domain.InputArtifact{}, err
	}
	return audio.LoadFile(resolved)
}

// enhance drives one session from input to a terminal state. The journal
// sinks see every event; a cancelled ctx cancels the session.
func (a *app) enhance(ctx context.Context, artifact domain.InputArtifact) (*session.Controller, session.Session, error) {
	ctrl := session.NewController(a.client,
		session.WithPollInterval(a.cfg.PollInterval),
		session.WithMaxAttempts(a.cfg.PollMaxAttempts),
	)

	journalEvents, stopJournal := ctrl.Subscribe(256)
	journalDone := make(chan struct{})
	go func() {
		journal.Run(context.Background(), journalEvents, a.sinks()...)
		close(journalDone)
	}()
	defer func() {
		stopJournal()
		<-journalDone
	}()

	events, unsubscribe := ctrl.Subscribe(256)
	defer unsubscribe()

	if err := ctrl.AcquireInput(artifact); err != nil {
		return ctrl, session.Session{}, err
	}
	stopCancel := context.AfterFunc(ctx, ctrl.Cancel)
	defer stopCancel()

	if err := ctrl.Submit(ctx); err != nil {
		if ctx.Err() != nil {
			return ctrl, ctrl.Snapshot(), session.ErrCanceled
		}
		return ctrl, ctrl.Snapshot(), err
	}

	final, err := a.follow(ctx, events)
	if err != nil {
		return ctrl, ctrl.Snapshot(), err
	}
	if final.State == session.StateFailed {
		if final.Error == nil {
			return ctrl, final.Session, apperr.Server(0, "processing failed")
		}
		return ctrl, final.Session, final.Error.Err()
	}

	fmt.Fprintln(a.out)
	fmt.Fprintf(a.out, "Enhanced %s in %s (%d status checks)\n\n",
		final.Session.ArtifactName(),
		cli.FormatDurationShort(final.Session.FinishedAt.Sub(final.Session.SubmittedAt)),
		final.Session.PollAttempts)
	if err := cli.WriteResults(a.out, *final.Session.Results); err != nil {
		return ctrl, final.Session, err
	}
	return ctrl, final.Session, nil
}

// follow renders state and progress until the session is terminal.
func (a *app) follow(ctx context.Context, events <-chan session.Event) (session.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return session.Event{}, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return session.Event{}, session.ErrEventsClosed
			}
			switch {
			case ev.Type == session.EventTypeProgress:
				fmt.Fprintf(a.out, "\r%s", cli.FormatProgressBar(ev.Progress, 30))
			case ev.State == session.StateUploading:
				fmt.Fprintf(a.out, "Uploading %s...\n", ev.Session.ArtifactName())
			case ev.State == session.StateProcessing:
				fmt.Fprintf(a.out, "Processing job %s\n", ev.Session.JobID)
			case ev.State.Terminal():
				return ev, nil
			case ev.State == session.StateIdle:
				return session.Event{}, session.ErrCanceled
			}
		}
	}
}

type outputs struct {
	out     string
	bundle  string
	archive bool
}

// deliver downloads the enhanced audio when any output asks for it, then
// writes and ships the bundle.
func (a *app) deliver(ctx context.Context, ctrl *session.Controller, s session.Session, o outputs) error {
	if o.out == "" && o.bundle == "" && !o.archive {
		return nil
	}

	audioPath := o.out
	if audioPath == "" {
		tmp, err := os.CreateTemp("", "enhanced-*"+filepath.Ext(s.ArtifactName()))
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}
		tmp.Close()
		audioPath = tmp.Name()
		defer os.Remove(audioPath)
	}
	if err := downloadTo(ctx, ctrl.Download, s.Results.DownloadRef, audioPath); err != nil {
		return err
	}
	if o.out != "" {
		fmt.Fprintf(a.out, "\nEnhanced audio written to %s\n", o.out)
	}

	if o.bundle == "" && !o.archive {
		return nil
	}
	bundlePath := o.bundle
	if bundlePath == "" {
		bundlePath = filepath.Join(os.TempDir(), "enhance-"+s.ID+".zip")
		defer os.Remove(bundlePath)
	}
	f, err := os.Open(audioPath)
	if err != nil {
		return fmt.Errorf("open enhanced audio: %w", err)
	}
	defer f.Close()

	size, err := archive.WriteFile(bundlePath, archive.Bundle{
		SessionID:    s.ID,
		ArtifactName: s.ArtifactName(),
		JobID:        s.JobID,
		Results:      *s.Results,
		AudioName:    enhancedName(s.ArtifactName()),
		Audio:        f,
	})
	if err != nil {
		return err
	}
	if o.bundle != "" {
		fmt.Fprintf(a.out, "Bundle written to %s (%d bytes)\n", bundlePath, size)
	}

	if o.archive {
		key, link, err := a.archiver.Upload(ctx, s.ID, bundlePath)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Bundle archived to s3://%s/%s\n", a.cfg.ArchiveBucket, key)
		if link != "" {
			fmt.Fprintf(a.out, "Download link (valid %s): %s\n", archive.DefaultLinkExpiry, link)
		}
	}
	return nil
}

// downloadTo streams a processed artifact to path. ref is only logged.
func downloadTo(ctx context.Context, open func(context.Context) (io.ReadCloser, error), ref, path string) error {
	body, err := open(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return apperr.Network("download", err)
	}
	log.Debug().Str("fileId", ref).Str("path", path).Int64("bytes", n).Msg("Enhanced audio downloaded")
	return nil
}

// enhancedName derives the bundle entry name from the input name.
func enhancedName(input string) string {
	if input == "" || input == "recording" {
		return "recording-enhanced.wav"
	}
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "-enhanced" + ext
}
