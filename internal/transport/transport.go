// Package transport defines the remote-call contract consumed by the session
// controller and the HTTP adapter that speaks the enhancement service API.
//
// The service flow for one artifact:
//  1. Upload the audio (multipart for files, /record + /record/save for recordings)
//  2. Start a processing job for the returned file id
//  3. Poll job status until completed or failed
//  4. Fetch the eight result metrics, then download the processed audio
package transport

import (
	"context"
	"io"

	"github.com/fpang/speech-enhancer/internal/domain"
)

// Client is the contract the controller consumes. Every method may fail
// with an *apperr.Error of kind Network or Server; Download additionally
// reports NotFound.
type Client interface {
	Upload(ctx context.Context, artifact domain.InputArtifact) (fileID string, err error)
	StartJob(ctx context.Context, fileID string) (jobID string, err error)
	GetStatus(ctx context.Context, jobID string) (domain.StatusReport, error)
	GetResults(ctx context.Context, jobID string) (domain.ResultSet, error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
}
