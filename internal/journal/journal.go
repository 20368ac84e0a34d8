// Package journal consumes a controller's event stream and hands each event
// to a set of sinks: the history store, EMF metrics and the EventBridge
// publisher. Sinks run on the journal goroutine, never on the controller's.
package journal

import (
	"context"
	"io"

	"github.com/fpang/speech-enhancer/internal/metrics"
	"github.com/fpang/speech-enhancer/internal/notify"
	"github.com/fpang/speech-enhancer/internal/session"
	"github.com/fpang/speech-enhancer/internal/store"
	"github.com/rs/zerolog/log"
)

// Sink receives events in publication order.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev session.Event) error
}

// Run delivers events to every sink until the channel closes or ctx is
// cancelled. Events still buffered in a closed channel are drained first.
// A failing sink is logged and does not stop the others.
func Run(ctx context.Context, events <-chan session.Event, sinks ...Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			for _, s := range sinks {
				if err := s.Handle(ctx, ev); err != nil {
					log.Warn().
						Err(err).
						Str("sink", s.Name()).
						Int64("seq", ev.Seq).
						Str("sessionId", ev.Session.ID).
						Msg("Journal sink failed")
				}
			}
		}
	}
}

func isTerminal(ev session.Event) bool {
	return ev.Type == session.EventTypeState && ev.State.Terminal()
}

// RecordFromSession builds the history record for a terminal session.
func RecordFromSession(s session.Session) store.Record {
	rec := store.Record{
		SessionID:    s.ID,
		ArtifactName: s.ArtifactName(),
		FileID:       s.FileID,
		JobID:        s.JobID,
		Outcome:      string(s.State),
		PollAttempts: s.PollAttempts,
		Results:      s.Results,
	}
	if s.Artifact != nil {
		rec.ArtifactKind = string(s.Artifact.Kind)
	}
	if s.LastError != nil {
		rec.ErrorKind = s.LastError.Kind
		rec.ErrorMessage = s.LastError.Message
	}
	if !s.SubmittedAt.IsZero() {
		rec.SubmittedAt = s.SubmittedAt.UnixMilli()
	}
	if !s.FinishedAt.IsZero() {
		rec.FinishedAt = s.FinishedAt.UnixMilli()
	}
	return rec
}

// HistorySink persists every terminal session.
type HistorySink struct {
	Store store.HistoryStore
}

func (h HistorySink) Name() string { return "history" }

func (h HistorySink) Handle(ctx context.Context, ev session.Event) error {
	if !isTerminal(ev) {
		return nil
	}
	rec := RecordFromSession(ev.Session)
	if rec.FinishedAt == 0 {
		rec.FinishedAt = ev.Timestamp.UnixMilli()
	}
	return h.Store.PutRecord(ctx, &rec)
}

// MetricsSink writes one EMF document per terminal session.
type MetricsSink struct {
	Out       io.Writer
	Namespace string
}

func (m MetricsSink) Name() string { return "metrics" }

func (m MetricsSink) Handle(ctx context.Context, ev session.Event) error {
	if !isTerminal(ev) {
		return nil
	}
	s := ev.Session
	sample := metrics.JobSample{
		SessionID: s.ID,
		JobID:     s.JobID,
		Outcome:   string(s.State),
		Attempts:  s.PollAttempts,
	}
	if s.LastError != nil {
		sample.ErrorKind = s.LastError.Kind
	}
	if !s.SubmittedAt.IsZero() && s.FinishedAt.After(s.SubmittedAt) {
		sample.Duration = s.FinishedAt.Sub(s.SubmittedAt)
	}
	metrics.RecordJob(m.Out, m.Namespace, sample)
	return nil
}

// Publisher is the notify side of NotifySink.
type Publisher interface {
	Publish(ctx context.Context, event notify.StateChange) error
}

// NotifySink forwards state transitions. Progress events are not forwarded.
type NotifySink struct {
	Publisher Publisher
}

func (n NotifySink) Name() string { return "notify" }

func (n NotifySink) Handle(ctx context.Context, ev session.Event) error {
	if ev.Type != session.EventTypeState {
		return nil
	}
	change := notify.StateChange{
		SessionID:    ev.Session.ID,
		State:        string(ev.State),
		ArtifactName: ev.Session.ArtifactName(),
		JobID:        ev.Session.JobID,
		Progress:     ev.Progress,
		Timestamp:    ev.Timestamp,
	}
	if ev.Error != nil {
		change.ErrorKind = ev.Error.Kind
		change.ErrorMessage = ev.Error.Message
	}
	return n.Publisher.Publish(ctx, change)
}
