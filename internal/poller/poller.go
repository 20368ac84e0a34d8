// Package poller tracks a remote processing job by querying its status at
// a fixed interval until the job reaches a terminal status or the attempt
// cap is hit.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/fpang/speech-enhancer/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultInterval is the wait before each status query.
	DefaultInterval = 500 * time.Millisecond

	// DefaultMaxAttempts caps status queries per job.
	DefaultMaxAttempts = 30

	// TimeoutMessage is the outcome message when the attempt cap is reached.
	TimeoutMessage = "processing timed out"
)

// StatusFetcher is the single transport call the poller needs.
type StatusFetcher interface {
	GetStatus(ctx context.Context, jobID string) (domain.StatusReport, error)
}

// OutcomeKind is how a poll run ended.
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeTimeout   OutcomeKind = "timeout"
)

// Update is delivered after every status query. Exactly one of Report and
// Err is meaningful.
type Update struct {
	Attempt int
	Report  domain.StatusReport
	Err     error
}

// Outcome is delivered once when the loop ends on its own. A stopped
// poller delivers no outcome.
type Outcome struct {
	Kind         OutcomeKind
	ErrorMessage string
	Attempts     int
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(p *Poller) { p.maxAttempts = n }
}

// Poller runs one polling loop at a time. It is not reusable after Start.
type Poller struct {
	fetcher     StatusFetcher
	interval    time.Duration
	maxAttempts int

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Poller.
func New(fetcher StatusFetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:     fetcher,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = DefaultMaxAttempts
	}
	return p
}

// Start launches the loop for jobID. onUpdate sees every query result,
// including transient transport failures. onTerminal is called at most
// once, from the loop goroutine. An outcome already being delivered when
// Stop is called still arrives, so callers tag runs and drop stale ones.
// Calling Start twice is a no-op.
func (p *Poller) Start(ctx context.Context, jobID string, onUpdate func(Update), onTerminal func(Outcome)) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	go p.run(ctx, jobID, onUpdate, onTerminal)
}

// Stop cancels the pending wait and any in-flight query. It does not block
// and is safe to call repeatedly or before Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	if !p.started {
		// Nothing will ever run; let Wait return immediately.
		p.started = true
		close(p.done)
	}
}

// Wait blocks until the loop goroutine has exited. Do not call it from
// inside onUpdate or onTerminal.
func (p *Poller) Wait() {
	<-p.done
}

func (p *Poller) run(ctx context.Context, jobID string, onUpdate func(Update), onTerminal func(Outcome)) {
	defer close(p.done)

	logger := log.With().Str("jobId", jobID).Logger()
	logger.Debug().
		Dur("interval", p.interval).
		Int("maxAttempts", p.maxAttempts).
		Msg("Job poller started")

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			logger.Debug().Int("attempt", attempt).Msg("Job poller stopped")
			return
		case <-timer.C:
		}

		report, err := p.fetcher.GetStatus(ctx, jobID)
		// Stop won the race against the in-flight query; drop its result.
		if ctx.Err() != nil {
			logger.Debug().Int("attempt", attempt).Msg("Job poller stopped during query")
			return
		}

		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("Status query failed, will retry")
			if onUpdate != nil {
				onUpdate(Update{Attempt: attempt, Err: err})
			}
		} else {
			logger.Debug().
				Int("attempt", attempt).
				Str("status", string(report.Status)).
				Int("progress", report.Progress).
				Msg("Job status")
			if onUpdate != nil {
				onUpdate(Update{Attempt: attempt, Report: report})
			}

			switch report.Status {
			case domain.JobStatusCompleted:
				p.finish(ctx, onTerminal, Outcome{Kind: OutcomeCompleted, Attempts: attempt})
				return
			case domain.JobStatusFailed:
				p.finish(ctx, onTerminal, Outcome{
					Kind:         OutcomeFailed,
					ErrorMessage: report.ErrorMessage,
					Attempts:     attempt,
				})
				return
			}
		}

		if attempt >= p.maxAttempts {
			logger.Warn().Int("attempts", attempt).Msg("Job poller gave up")
			p.finish(ctx, onTerminal, Outcome{
				Kind:         OutcomeTimeout,
				ErrorMessage: TimeoutMessage,
				Attempts:     attempt,
			})
			return
		}

		timer.Reset(p.interval)
	}
}

func (p *Poller) finish(ctx context.Context, onTerminal func(Outcome), out Outcome) {
	if ctx.Err() != nil || onTerminal == nil {
		return
	}
	log.Info().
		Str("outcome", string(out.Kind)).
		Int("attempts", out.Attempts).
		Msg("Job poller finished")
	onTerminal(out)
}
