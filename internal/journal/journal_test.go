package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fpang/speech-enhancer/internal/domain"
	"github.com/fpang/speech-enhancer/internal/notify"
	"github.com/fpang/speech-enhancer/internal/session"
	"github.com/fpang/speech-enhancer/internal/store"
	"github.com/fpang/speech-enhancer/internal/stubserver"
	"github.com/fpang/speech-enhancer/internal/transport"
)

type recordingPublisher struct {
	changes []notify.StateChange
	err     error
}

func (r *recordingPublisher) Publish(ctx context.Context, ev notify.StateChange) error {
	r.changes = append(r.changes, ev)
	return r.err
}

func terminalEvent(state session.State) session.Event {
	submitted := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	s := session.Session{
		ID:           "s-1",
		State:        state,
		Artifact:     &domain.InputArtifact{Kind: domain.ArtifactUploadedFile, Name: "speech.wav", Payload: []byte("x")},
		FileID:       "3",
		JobID:        "job-3",
		PollAttempts: 4,
		SubmittedAt:  submitted,
		FinishedAt:   submitted.Add(2 * time.Second),
	}
	if state == session.StateCompleted {
		s.Results = &domain.ResultSet{SegmentalSNR: 12.5, DownloadRef: "3"}
	} else {
		s.LastError = &session.Failure{Kind: "server", Message: "Error processing audio"}
	}
	return session.Event{
		Seq:       9,
		Timestamp: s.FinishedAt,
		Type:      session.EventTypeState,
		State:     state,
		Progress:  50,
		Error:     s.LastError,
		Session:   s,
	}
}

func feed(events ...session.Event) <-chan session.Event {
	ch := make(chan session.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestRecordFromSession(t *testing.T) {
	rec := RecordFromSession(terminalEvent(session.StateFailed).Session)
	if rec.Outcome != store.OutcomeFailed {
		t.Errorf("expected failed outcome, got %s", rec.Outcome)
	}
	if rec.ArtifactName != "speech.wav" || rec.ArtifactKind != string(domain.ArtifactUploadedFile) {
		t.Errorf("unexpected artifact fields: %+v", rec)
	}
	if rec.ErrorKind != "server" || rec.ErrorMessage != "Error processing audio" {
		t.Errorf("unexpected error fields: %+v", rec)
	}
	if rec.Duration() != 2*time.Second {
		t.Errorf("expected 2s duration, got %s", rec.Duration())
	}
}

func TestHistorySinkRecordsOnlyTerminal(t *testing.T) {
	mem := store.NewMemoryStore()
	progress := session.Event{Type: session.EventTypeProgress, State: session.StateProcessing, Session: session.Session{ID: "s-1"}}
	processing := session.Event{Type: session.EventTypeState, State: session.StateProcessing, Session: session.Session{ID: "s-1"}}

	Run(context.Background(), feed(processing, progress, terminalEvent(session.StateCompleted)), HistorySink{Store: mem})

	list, _ := mem.ListRecords(context.Background(), 0)
	if len(list) != 1 {
		t.Fatalf("expected 1 record, got %d", len(list))
	}
	if list[0].Outcome != store.OutcomeCompleted || list[0].Results == nil {
		t.Errorf("unexpected record %+v", list[0])
	}
}

func TestMetricsSinkEmitsPerTerminal(t *testing.T) {
	var buf bytes.Buffer
	Run(context.Background(),
		feed(terminalEvent(session.StateCompleted), terminalEvent(session.StateFailed)),
		MetricsSink{Out: &buf, Namespace: "Test"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 EMF lines, got %d: %s", len(lines), buf.String())
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &doc); err != nil {
		t.Fatalf("bad EMF line: %v", err)
	}
	if doc["Outcome"] != "failed" || doc["errorKind"] != "server" {
		t.Errorf("unexpected failed metrics doc: %v", doc)
	}
	if doc["JobDurationMs"] != float64(2000) {
		t.Errorf("expected 2000ms, got %v", doc["JobDurationMs"])
	}
}

func TestNotifySinkSkipsProgress(t *testing.T) {
	pub := &recordingPublisher{}
	progress := session.Event{Type: session.EventTypeProgress, State: session.StateProcessing}
	Run(context.Background(), feed(progress, terminalEvent(session.StateFailed)), NotifySink{Publisher: pub})

	if len(pub.changes) != 1 {
		t.Fatalf("expected 1 state change, got %d", len(pub.changes))
	}
	c := pub.changes[0]
	if c.State != "failed" || c.ErrorMessage != "Error processing audio" || c.SessionID != "s-1" {
		t.Errorf("unexpected change %+v", c)
	}
}

func TestFailingSinkDoesNotStopOthers(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("bus unavailable")}
	mem := store.NewMemoryStore()
	Run(context.Background(), feed(terminalEvent(session.StateCompleted)), NotifySink{Publisher: pub}, HistorySink{Store: mem})

	if rec, _ := mem.GetRecord(context.Background(), "s-1"); rec == nil {
		t.Error("expected history sink to run after notify failure")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		Run(ctx, make(chan session.Event))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestJournalFollowsController(t *testing.T) {
	srv := httptest.NewServer(stubserver.New(stubserver.WithProgressStep(50)).Router())
	defer srv.Close()

	ctrl := session.NewController(transport.NewHTTPClient(srv.URL), session.WithPollInterval(5*time.Millisecond))
	events, unsubscribe := ctrl.Subscribe(256)
	waitEvents, stopWait := ctrl.Subscribe(256)
	defer stopWait()

	mem := store.NewMemoryStore()
	pub := &recordingPublisher{}
	done := make(chan struct{})
	go func() {
		Run(context.Background(), events, HistorySink{Store: mem}, NotifySink{Publisher: pub})
		close(done)
	}()

	err := ctrl.AcquireInput(domain.InputArtifact{
		Kind:    domain.ArtifactUploadedFile,
		Name:    "speech.wav",
		Format:  "wav",
		Payload: []byte("RIFF0000WAVE"),
	})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctrl.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := session.WaitTerminal(ctx, waitEvents); err != nil {
		t.Fatalf("wait: %v", err)
	}
	unsubscribe()
	<-done

	id := ctrl.Snapshot().ID
	rec, err := mem.GetRecord(context.Background(), id)
	if err != nil || rec == nil {
		t.Fatalf("expected history record for %s, got %v %v", id, rec, err)
	}
	if rec.Outcome != store.OutcomeCompleted || rec.FileID != "1" {
		t.Errorf("unexpected record %+v", rec)
	}

	var states []string
	for _, c := range pub.changes {
		states = append(states, c.State)
	}
	want := "input_ready,uploading,uploaded,submitting,processing,completed"
	if got := strings.Join(states, ","); got != want {
		t.Errorf("expected states %s, got %s", want, got)
	}
}
