package session_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fpang/speech-enhancer/internal/audio"
	"github.com/fpang/speech-enhancer/internal/domain"
	"github.com/fpang/speech-enhancer/internal/session"
	"github.com/fpang/speech-enhancer/internal/stubserver"
	"github.com/fpang/speech-enhancer/internal/transport"
)

func runAgainstStub(t *testing.T, artifact domain.InputArtifact) (*session.Controller, session.Event) {
	t.Helper()
	server := httptest.NewServer(stubserver.New(stubserver.WithProgressStep(25)).Router())
	t.Cleanup(server.Close)

	client := transport.NewHTTPClient(server.URL, transport.WithHTTPClient(server.Client()))
	c := session.NewController(client, session.WithPollInterval(time.Millisecond))
	events, unsubscribe := c.Subscribe(128)
	t.Cleanup(unsubscribe)

	if err := c.AcquireInput(artifact); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	c.Submit(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := session.WaitTerminal(ctx, events)
	if err != nil {
		t.Fatalf("waiting for terminal state: %v", err)
	}
	return c, final
}

func TestEndToEndUploadedFile(t *testing.T) {
	payload := audio.EncodeWAV(make([]byte, 3200), 16000, 1, 16)
	c, final := runAgainstStub(t, domain.InputArtifact{
		Kind:      domain.ArtifactUploadedFile,
		Payload:   payload,
		Name:      "speech.wav",
		SizeBytes: int64(len(payload)),
		Format:    "wav",
	})

	if final.State != session.StateCompleted {
		t.Fatalf("expected completed, got %s (%+v)", final.State, final.Error)
	}
	if final.Session.Results.DownloadRef != "1" {
		t.Errorf("expected download ref 1, got %s", final.Session.Results.DownloadRef)
	}

	rc, err := c.Download(context.Background())
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if len(data) != len(payload) {
		t.Errorf("expected %d bytes, got %d", len(payload), len(data))
	}
}

func TestEndToEndRecording(t *testing.T) {
	duration := 0.1
	_, final := runAgainstStub(t, domain.InputArtifact{
		Kind:            domain.ArtifactRecording,
		Payload:         audio.EncodeWAV(make([]byte, 3200), 16000, 1, 16),
		DurationSeconds: &duration,
		SampleRate:      16000,
	})

	if final.State != session.StateCompleted {
		t.Fatalf("expected completed, got %s (%+v)", final.State, final.Error)
	}
}

func TestEndToEndUnsupportedFormat(t *testing.T) {
	c, final := runAgainstStub(t, domain.InputArtifact{
		Kind:    domain.ArtifactUploadedFile,
		Payload: []byte("FORM....AIFF"),
		Name:    "speech.aiff",
	})

	if final.State != session.StateFailed {
		t.Fatalf("expected failed, got %s", final.State)
	}
	if final.Error.Code != 415 || final.Error.Message != "unsupported format" {
		t.Errorf("unexpected error: %+v", final.Error)
	}
	if final.Session.JobID != "" {
		t.Errorf("expected no job id, got %s", final.Session.JobID)
	}

	c.Reset()
	if s := c.Snapshot(); s.State != session.StateIdle {
		t.Errorf("expected idle after reset, got %s", s.State)
	}
}

func TestEndToEndRemoteFailure(t *testing.T) {
	_, final := runAgainstStub(t, domain.InputArtifact{
		Kind:    domain.ArtifactUploadedFile,
		Payload: []byte("RIFF"),
		Name:    stubserver.FailPrefix + "speech.wav",
	})

	if final.State != session.StateFailed {
		t.Fatalf("expected failed, got %s", final.State)
	}
	if final.Error.Message != "Error processing audio" {
		t.Errorf("unexpected error: %+v", final.Error)
	}
}
