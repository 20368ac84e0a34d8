package session

import (
	"errors"
	"time"

	"github.com/fpang/speech-enhancer/internal/apperr"
	"github.com/fpang/speech-enhancer/internal/domain"
)

// State is a session lifecycle stage.
type State string

const (
	StateIdle       State = "idle"
	StateInputReady State = "input_ready"
	StateUploading  State = "uploading"
	StateUploaded   State = "uploaded"
	StateSubmitting State = "submitting"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether s ends a submission.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// isValidTransition enforces the session state machine edges. Reset to
// Idle is always allowed and not checked here.
func isValidTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateInputReady
	case StateInputReady:
		return to == StateUploading
	case StateUploading:
		return to == StateUploaded || to == StateFailed
	case StateUploaded:
		return to == StateSubmitting
	case StateSubmitting:
		return to == StateProcessing || to == StateFailed
	case StateProcessing:
		return to == StateCompleted || to == StateFailed
	case StateCompleted:
		return to == StateInputReady
	case StateFailed:
		return to == StateInputReady
	default:
		return false
	}
}

// Failure is the display-ready error carried by a failed session.
type Failure struct {
	Kind    string `json:"kind"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// Err rebuilds a classified error from the failure.
func (f Failure) Err() error {
	return &apperr.Error{Kind: apperr.ParseKind(f.Kind), Code: f.Code, Message: f.Message}
}

func failureFrom(err error) *Failure {
	f := &Failure{
		Kind:    apperr.KindOf(err).String(),
		Message: apperr.DisplayMessage(err),
	}
	var e *apperr.Error
	if errors.As(err, &e) {
		f.Code = e.Code
	}
	return f
}

// Session is the single client context a Controller manages. Values
// returned by Controller.Snapshot are copies and safe to retain.
type Session struct {
	ID       string                `json:"sessionId,omitempty"`
	State    State                 `json:"state"`
	Artifact *domain.InputArtifact `json:"-"`
	FileID   string                `json:"fileId,omitempty"`
	JobID    string                `json:"jobId,omitempty"`
	Job      *domain.Job           `json:"job,omitempty"`
	Results  *domain.ResultSet     `json:"results,omitempty"`

	LastError *Failure `json:"lastError,omitempty"`

	// PollAttempts counts status queries made for the current job.
	PollAttempts int       `json:"pollAttempts,omitempty"`
	SubmittedAt  time.Time `json:"submittedAt,omitempty"`
	FinishedAt   time.Time `json:"finishedAt,omitempty"`
}

// ArtifactName returns the display name of the held artifact, if any.
func (s Session) ArtifactName() string {
	if s.Artifact == nil {
		return ""
	}
	return s.Artifact.DisplayName()
}

// clone returns a copy that shares nothing mutable with s. The artifact is
// immutable once acquired and is shared.
func (s Session) clone() Session {
	out := s
	if s.Job != nil {
		j := *s.Job
		out.Job = &j
	}
	if s.Results != nil {
		r := *s.Results
		out.Results = &r
	}
	if s.LastError != nil {
		f := *s.LastError
		out.LastError = &f
	}
	return out
}
