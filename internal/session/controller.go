// Package session implements the session/job lifecycle controller: a state
// machine that takes one input artifact through upload, job submission,
// status polling and result retrieval, and recovers from failures.
//
// A Controller owns exactly one Session. All Session mutation happens under
// the controller's mutex; remote calls run without it. Every submission runs
// under a generation. Cancel bumps the generation, so callbacks and remote
// replies that belong to a superseded submission are discarded.
package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/fpang/speech-enhancer/internal/apperr"
	"github.com/fpang/speech-enhancer/internal/domain"
	"github.com/fpang/speech-enhancer/internal/poller"
	"github.com/fpang/speech-enhancer/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrCanceled is returned by Submit when Cancel superseded it.
	ErrCanceled = errors.New("submission canceled")

	// ErrEventsClosed is returned by WaitTerminal when the subscription ends.
	ErrEventsClosed = errors.New("event subscription closed")
)

// Option configures a Controller.
type Option func(*Controller)

// WithPollInterval sets the wait between status queries.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.pollOpts = append(c.pollOpts, poller.WithInterval(d)) }
}

// WithMaxAttempts caps status queries per job.
func WithMaxAttempts(n int) Option {
	return func(c *Controller) { c.pollOpts = append(c.pollOpts, poller.WithMaxAttempts(n)) }
}

// WithEventBus publishes to bus instead of a private one.
func WithEventBus(bus *EventBus) Option {
	return func(c *Controller) { c.bus = bus }
}

// Controller drives one Session through its lifecycle. It is safe for
// concurrent use.
type Controller struct {
	transport transport.Client
	pollOpts  []poller.Option
	bus       *EventBus

	mu        sync.Mutex
	session   Session
	gen       uint64
	genCtx    context.Context
	genCancel context.CancelFunc
	poller    *poller.Poller
}

// NewController creates a Controller in Idle.
func NewController(client transport.Client, opts ...Option) *Controller {
	c := &Controller{
		transport: client,
		session:   Session{State: StateIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bus == nil {
		c.bus = NewEventBus(0)
	}
	c.genCtx, c.genCancel = context.WithCancel(context.Background())
	return c
}

// Events returns the bus the controller publishes to.
func (c *Controller) Events() *EventBus {
	return c.bus
}

// Subscribe is shorthand for Events().Subscribe.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	return c.bus.Subscribe(buffer)
}

// Snapshot returns a copy of the current Session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.clone()
}

// AcquireInput stores a finalized artifact and moves to InputReady,
// discarding any previous file, job and results. It is valid only in Idle,
// Failed and Completed.
func (c *Controller) AcquireInput(artifact domain.InputArtifact) error {
	if err := artifact.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.session.State {
	case StateIdle, StateFailed, StateCompleted:
	default:
		return apperr.State("acquireInput", string(c.session.State))
	}

	held := artifact
	from := c.session.State
	c.session = Session{
		ID:       uuid.NewString(),
		State:    from,
		Artifact: &held,
	}
	c.transitionLocked(StateInputReady)

	log.Info().
		Str("sessionId", c.session.ID).
		Str("artifact", held.DisplayName()).
		Str("kind", string(held.Kind)).
		Int("sizeBytes", len(held.Payload)).
		Msg("Input acquired")
	return nil
}

// Submit uploads the held artifact, starts a processing job and begins
// polling. It returns once the session reaches Processing or Failed; a
// remote failure is returned as well as recorded on the session.
//
// Submit is valid in InputReady, and in Failed while the artifact is still
// held, which retries the whole submission.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	state := c.session.State
	retry := state == StateFailed && c.session.Artifact != nil
	if state != StateInputReady && !retry {
		c.mu.Unlock()
		return apperr.State("submit", string(state))
	}
	if retry {
		log.Info().Str("sessionId", c.session.ID).Msg("Retrying failed submission")
		c.clearJobLocked()
		c.transitionLocked(StateInputReady)
	}

	c.gen++
	c.session.SubmittedAt = time.Now().UTC()
	c.transitionLocked(StateUploading)
	gen, genCtx := c.gen, c.genCtx
	artifact := *c.session.Artifact
	c.mu.Unlock()

	callCtx, cancel := mergeCancel(ctx, genCtx)
	defer cancel()

	fileID, err := c.transport.Upload(callCtx, artifact)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrCanceled
	}
	if err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		return err
	}
	c.session.FileID = fileID
	c.transitionLocked(StateUploaded)
	c.transitionLocked(StateSubmitting)
	c.mu.Unlock()

	jobID, err := c.transport.StartJob(callCtx, fileID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return ErrCanceled
	}
	if err != nil {
		c.failLocked(err)
		return err
	}

	c.session.JobID = jobID
	c.session.Job = &domain.Job{ID: jobID, Status: domain.JobStatusPending}
	c.transitionLocked(StateProcessing)

	p := poller.New(c.transport, c.pollOpts...)
	c.poller = p
	p.Start(genCtx, jobID,
		func(u poller.Update) { c.onPollUpdate(gen, u) },
		func(o poller.Outcome) { c.onPollTerminal(gen, o) },
	)
	return nil
}

// Cancel stops any poller and in-flight remote call, clears the session and
// returns to Idle. The poller has fully exited when Cancel returns. Calling
// Cancel in Idle does nothing.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.session.State == StateIdle {
		c.mu.Unlock()
		return
	}

	prev := c.session
	c.gen++
	c.genCancel()
	c.genCtx, c.genCancel = context.WithCancel(context.Background())

	p := c.poller
	c.poller = nil
	if p != nil {
		p.Stop()
	}

	c.session = Session{State: StateIdle}
	c.publishLocked(EventTypeState)
	c.mu.Unlock()

	if p != nil {
		p.Wait()
	}

	log.Info().
		Str("sessionId", prev.ID).
		Str("from", string(prev.State)).
		Msg("Session reset")
}

// Reset is an alias for Cancel.
func (c *Controller) Reset() {
	c.Cancel()
}

// Download streams the processed artifact of a completed session.
func (c *Controller) Download(ctx context.Context) (io.ReadCloser, error) {
	c.mu.Lock()
	if c.session.State != StateCompleted || c.session.Results == nil {
		state := c.session.State
		c.mu.Unlock()
		return nil, apperr.State("download", string(state))
	}
	ref := c.session.Results.DownloadRef
	c.mu.Unlock()

	return c.transport.Download(ctx, ref)
}

// --- Poller callbacks ---

func (c *Controller) onPollUpdate(gen uint64, u poller.Update) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || c.session.State != StateProcessing {
		return
	}
	c.session.PollAttempts = u.Attempt
	if u.Err != nil {
		return
	}

	before := c.session.Job.Progress
	if regressed := c.session.Job.Apply(u.Report); regressed {
		log.Warn().
			Str("sessionId", c.session.ID).
			Str("jobId", c.session.JobID).
			Int("stored", before).
			Int("reported", u.Report.Progress).
			Msg("Progress went backwards, keeping stored value")
	}
	c.publishLocked(EventTypeProgress)
}

func (c *Controller) onPollTerminal(gen uint64, o poller.Outcome) {
	c.mu.Lock()
	if c.gen != gen || c.session.State != StateProcessing {
		c.mu.Unlock()
		return
	}
	c.poller = nil
	c.session.PollAttempts = o.Attempts

	switch o.Kind {
	case poller.OutcomeFailed:
		msg := o.ErrorMessage
		if msg == "" {
			msg = "processing failed"
		}
		c.failLocked(apperr.Server(0, msg))
		c.mu.Unlock()
		return
	case poller.OutcomeTimeout:
		c.failLocked(apperr.Timeout(o.ErrorMessage))
		c.mu.Unlock()
		return
	}

	jobID, fileID, genCtx := c.session.JobID, c.session.FileID, c.genCtx
	c.mu.Unlock()

	results, err := c.transport.GetResults(genCtx, jobID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.session.State != StateProcessing {
		return
	}
	if err != nil {
		c.failLocked(err)
		return
	}

	results.DownloadRef = fileID
	c.session.Results = &results
	c.session.FinishedAt = time.Now().UTC()
	c.transitionLocked(StateCompleted)

	log.Info().
		Str("sessionId", c.session.ID).
		Str("jobId", jobID).
		Int("attempts", o.Attempts).
		Float64("segmentalSnr", results.SegmentalSNR).
		Msg("Enhancement completed")
}

// --- Internal helpers ---

// transitionLocked moves to the given state and publishes the change.
func (c *Controller) transitionLocked(to State) {
	from := c.session.State
	if !isValidTransition(from, to) {
		log.Error().Str("from", string(from)).Str("to", string(to)).Msg("Invalid session transition")
		return
	}
	c.session.State = to
	log.Debug().
		Str("sessionId", c.session.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Session transition")
	c.publishLocked(EventTypeState)
}

func (c *Controller) failLocked(err error) {
	c.session.LastError = failureFrom(err)
	c.session.FinishedAt = time.Now().UTC()
	log.Error().
		Err(err).
		Str("sessionId", c.session.ID).
		Str("state", string(c.session.State)).
		Str("jobId", c.session.JobID).
		Msg("Session failed")
	c.transitionLocked(StateFailed)
}

// clearJobLocked drops everything derived from a previous submission.
func (c *Controller) clearJobLocked() {
	c.session.FileID = ""
	c.session.JobID = ""
	c.session.Job = nil
	c.session.Results = nil
	c.session.LastError = nil
	c.session.PollAttempts = 0
	c.session.SubmittedAt = time.Time{}
	c.session.FinishedAt = time.Time{}
}

func (c *Controller) publishLocked(t EventType) {
	ev := Event{
		Type:    t,
		State:   c.session.State,
		Error:   c.session.LastError,
		Session: c.session.clone(),
	}
	if c.session.Job != nil {
		ev.Progress = c.session.Job.Progress
	}
	c.bus.Publish(ev)
}

// mergeCancel returns a context derived from parent that is also cancelled
// when other is.
func mergeCancel(parent, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(other, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
