package metrics

import (
	"io"
	"time"
)

// JobSample describes one finished enhancement job.
type JobSample struct {
	SessionID string
	JobID     string
	Outcome   string // "completed" or "failed"
	ErrorKind string
	Attempts  int
	Duration  time.Duration
}

// RecordJob emits a single EMF document for a finished job. The outcome is the
// only dimension so completed and failed jobs chart as separate series.
func RecordJob(w io.Writer, namespace string, s JobSample) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	rec := NewWithWriter(namespace, w)
	rec.Dimension("Outcome", s.Outcome).
		Count("JobCount").
		Metric("PollAttempts", float64(s.Attempts), UnitCount).
		Property("sessionId", s.SessionID)
	if s.Duration > 0 {
		rec.Metric("JobDurationMs", float64(s.Duration.Milliseconds()), UnitMilliseconds)
	}
	if s.JobID != "" {
		rec.Property("jobId", s.JobID)
	}
	if s.ErrorKind != "" {
		rec.Property("errorKind", s.ErrorKind)
	}
	rec.Flush()
}
