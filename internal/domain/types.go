// Package domain holds the data model shared by the transport adapter, the
// job poller and the session controller.
package domain

import "github.com/fpang/speech-enhancer/internal/apperr"

// ArtifactKind distinguishes how an input artifact was produced.
type ArtifactKind string

const (
	ArtifactUploadedFile ArtifactKind = "uploaded_file"
	ArtifactRecording    ArtifactKind = "recording"
)

// InputArtifact is a finalized audio input ready for submission.
// Treat it as immutable once produced.
type InputArtifact struct {
	Kind    ArtifactKind
	Payload []byte

	// Uploaded files only.
	Name      string
	SizeBytes int64
	Format    string

	// DurationSeconds is optional for uploaded files and required for
	// recordings. SampleRate is set for recordings.
	DurationSeconds *float64
	SampleRate      int
}

// Validate reports an InputError when the artifact cannot be submitted.
func (a InputArtifact) Validate() error {
	if len(a.Payload) == 0 {
		return apperr.Input("artifact payload is empty")
	}
	switch a.Kind {
	case ArtifactUploadedFile:
		if a.Name == "" {
			return apperr.Input("uploaded file has no name")
		}
	case ArtifactRecording:
		if a.DurationSeconds == nil || *a.DurationSeconds <= 0 {
			return apperr.Input("recording has no duration")
		}
		if a.SampleRate <= 0 {
			return apperr.Input("recording has no sample rate")
		}
	default:
		return apperr.Input("unknown artifact kind " + string(a.Kind))
	}
	return nil
}

// DisplayName returns a short label for logs and history records.
func (a InputArtifact) DisplayName() string {
	if a.Kind == ArtifactRecording {
		return "recording"
	}
	return a.Name
}

// JobStatus is the remote job lifecycle status.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether s is one of the statuses the remote service emits.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether s can never change again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// StatusReport is one response from the status endpoint.
type StatusReport struct {
	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// Job tracks one remote enhancement request as observed by a session.
type Job struct {
	ID           string    `json:"jobId"`
	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// Apply folds a status report into the job. Terminal jobs are never
// modified and progress never decreases; the boolean reports whether the
// reported progress was a regression that was discarded.
func (j *Job) Apply(r StatusReport) (regressed bool) {
	if j.Status.Terminal() {
		return false
	}
	if r.Progress < j.Progress {
		regressed = true
	} else {
		j.Progress = r.Progress
	}
	j.Status = r.Status
	if r.ErrorMessage != "" {
		j.ErrorMessage = r.ErrorMessage
	}
	return regressed
}

// ResultSet holds the eight enhancement metrics for a completed job.
type ResultSet struct {
	SignalPower               float64 `json:"signalPower" dynamodbav:"signalPower"`
	NoisePower                float64 `json:"noisePower" dynamodbav:"noisePower"`
	SNRInput                  float64 `json:"snrInput" dynamodbav:"snrInput"`
	WienerFilterGain          float64 `json:"wienerFilterGain" dynamodbav:"wienerFilterGain"`
	SpectralSubtractionFactor float64 `json:"spectralSubtractionFactor" dynamodbav:"spectralSubtractionFactor"`
	SpectralDistance          float64 `json:"spectralDistance" dynamodbav:"spectralDistance"`
	SegmentalSNR              float64 `json:"segmentalSnr" dynamodbav:"segmentalSnr"`
	ProcessingDurationSeconds float64 `json:"processingDurationSeconds" dynamodbav:"processingDurationSeconds"`

	// DownloadRef identifies the processed artifact for Download.
	DownloadRef string `json:"downloadRef" dynamodbav:"downloadRef"`
}
