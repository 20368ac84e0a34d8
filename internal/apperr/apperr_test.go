package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("upload: %w", Server(415, "unsupported format"))

	if KindOf(err) != KindServer {
		t.Errorf("expected KindServer, got %s", KindOf(err))
	}
	if !Is(err, KindServer) {
		t.Error("expected Is(err, KindServer) to be true")
	}
	if Is(err, KindNetwork) {
		t.Error("expected Is(err, KindNetwork) to be false")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindUnknown {
		t.Error("expected KindUnknown for a plain error")
	}
	if Is(nil, KindUnknown) {
		t.Error("nil error should never match a kind")
	}
}

func TestErrorFormatting(t *testing.T) {
	err := Server(415, "unsupported format")
	if got := err.Error(); got != "ServerError (415): unsupported format" {
		t.Errorf("unexpected message: %q", got)
	}

	netErr := Network("upload request", errors.New("connection refused"))
	if !strings.Contains(netErr.Error(), "connection refused") {
		t.Errorf("expected wrapped cause in message, got %q", netErr.Error())
	}
	if !errors.Is(netErr, netErr.Err) {
		t.Error("expected Unwrap to expose the cause")
	}
}

func TestDisplayMessage(t *testing.T) {
	if got := DisplayMessage(Timeout("processing timed out")); got != "processing timed out" {
		t.Errorf("expected timeout message, got %q", got)
	}
	if got := DisplayMessage(errors.New("raw")); got != "raw" {
		t.Errorf("expected raw message, got %q", got)
	}
	if got := DisplayMessage(nil); got != "" {
		t.Errorf("expected empty message for nil, got %q", got)
	}
}

func TestStateMessage(t *testing.T) {
	err := State("submit", "Idle")
	if err.Kind != KindState {
		t.Errorf("expected KindState, got %s", err.Kind)
	}
	if err.Message != "submit not allowed in state Idle" {
		t.Errorf("unexpected message: %q", err.Message)
	}
}

func TestParseKindRoundTrip(t *testing.T) {
	for k := KindUnknown; k <= KindNotFound; k++ {
		if got := ParseKind(k.String()); got != k {
			t.Errorf("expected %s, got %s", k, got)
		}
	}
	if got := ParseKind("Bogus"); got != KindUnknown {
		t.Errorf("expected KindUnknown, got %s", got)
	}
}
