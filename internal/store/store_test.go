package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fpang/speech-enhancer/internal/domain"
)

func completedRecord(id string, finishedAt int64) *Record {
	return &Record{
		SessionID:    id,
		ArtifactName: "speech.wav",
		ArtifactKind: string(domain.ArtifactUploadedFile),
		FileID:       "1",
		JobID:        "job-" + id,
		Outcome:      OutcomeCompleted,
		PollAttempts: 5,
		SubmittedAt:  finishedAt - 2500,
		FinishedAt:   finishedAt,
		Results: &domain.ResultSet{
			SignalPower:               0.85,
			SNRInput:                  15.2,
			SegmentalSNR:              12.5,
			ProcessingDurationSeconds: 2.1,
			DownloadRef:               "1",
		},
	}
}

// exerciseStore runs the behaviour every HistoryStore must share.
func exerciseStore(t *testing.T, s HistoryStore) {
	t.Helper()
	ctx := context.Background()

	got, err := s.GetRecord(ctx, "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing record, got %+v", got)
	}

	if err := s.PutRecord(ctx, completedRecord("a", 1000)); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if err := s.PutRecord(ctx, completedRecord("b", 3000)); err != nil {
		t.Fatalf("put b: %v", err)
	}
	failed := &Record{
		SessionID:    "c",
		ArtifactName: "recording",
		ArtifactKind: string(domain.ArtifactRecording),
		Outcome:      OutcomeFailed,
		ErrorKind:    "timeout",
		ErrorMessage: "processing timed out",
		PollAttempts: 30,
		FinishedAt:   2000,
	}
	if err := s.PutRecord(ctx, failed); err != nil {
		t.Fatalf("put c: %v", err)
	}

	got, err = s.GetRecord(ctx, "a")
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if got == nil {
		t.Fatal("expected record a")
	}
	if got.Results == nil || got.Results.SNRInput != 15.2 || got.Results.DownloadRef != "1" {
		t.Errorf("results not round-tripped: %+v", got.Results)
	}
	if got.Duration() != 2500*time.Millisecond {
		t.Errorf("expected 2.5s duration, got %s", got.Duration())
	}

	got, err = s.GetRecord(ctx, "c")
	if err != nil {
		t.Fatalf("get c: %v", err)
	}
	if got.Results != nil {
		t.Error("expected no results on failed record")
	}
	if got.ErrorMessage != "processing timed out" {
		t.Errorf("expected error message preserved, got %q", got.ErrorMessage)
	}

	list, err := s.ListRecords(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 records, got %d", len(list))
	}
	if list[0].SessionID != "b" || list[1].SessionID != "c" || list[2].SessionID != "a" {
		t.Errorf("expected newest first [b c a], got [%s %s %s]", list[0].SessionID, list[1].SessionID, list[2].SessionID)
	}

	list, err = s.ListRecords(ctx, 1)
	if err != nil {
		t.Fatalf("list limit: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected limit to apply, got %d", len(list))
	}

	// A retry keeps the session ID and replaces the earlier outcome.
	retried := completedRecord("c", 4000)
	if err := s.PutRecord(ctx, retried); err != nil {
		t.Fatalf("put retried c: %v", err)
	}
	got, err = s.GetRecord(ctx, "c")
	if err != nil {
		t.Fatalf("get retried c: %v", err)
	}
	if got.Outcome != OutcomeCompleted || got.ErrorMessage != "" {
		t.Errorf("expected retry to replace failure, got %+v", got)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStoreInMemory(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.PutRecord(context.Background(), completedRecord("persisted", 1000)); err != nil {
		t.Fatalf("put: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.GetRecord(context.Background(), "persisted")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected record to survive reopen")
	}
}

func TestRecordDurationUnknown(t *testing.T) {
	rec := Record{FinishedAt: 1000}
	if rec.Duration() != 0 {
		t.Errorf("expected zero duration without submission time, got %s", rec.Duration())
	}
}
