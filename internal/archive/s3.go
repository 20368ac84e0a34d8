package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fpang/speech-enhancer/internal/s3util"
	"github.com/rs/zerolog/log"
)

// DefaultLinkExpiry is how long a presigned bundle link stays valid.
const DefaultLinkExpiry = 24 * time.Hour

// S3Archiver uploads bundles under bundles/{sessionId}/ in one bucket.
type S3Archiver struct {
	client  s3util.PutObjectAPI
	presign s3util.PresignAPI
	bucket  string
	expiry  time.Duration
}

// NewS3Archiver creates an archiver. presign may be nil, in which case
// Upload returns no link.
func NewS3Archiver(client s3util.PutObjectAPI, presign s3util.PresignAPI, bucket string) *S3Archiver {
	return &S3Archiver{client: client, presign: presign, bucket: bucket, expiry: DefaultLinkExpiry}
}

// Key returns the object key for a bundle file.
func (a *S3Archiver) Key(sessionID, localPath string) string {
	return fmt.Sprintf("bundles/%s/%s", sessionID, filepath.Base(localPath))
}

// Upload stores the bundle at localPath and returns its key and, when a
// presigner is configured, a time-limited download link.
func (a *S3Archiver) Upload(ctx context.Context, sessionID, localPath string) (key, link string, err error) {
	key = a.Key(sessionID, localPath)
	size, err := s3util.UploadFile(ctx, a.client, a.bucket, key, localPath, "application/zip")
	if err != nil {
		return "", "", fmt.Errorf("archive %s: %w", sessionID, err)
	}

	if a.presign != nil {
		link, err = s3util.GeneratePresignedURL(ctx, a.presign, a.bucket, key, a.expiry)
		if err != nil {
			// The bundle is stored; a missing link is not fatal.
			log.Warn().Err(err).Str("key", key).Msg("Failed to presign bundle link")
			link = ""
		}
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("bucket", a.bucket).
		Str("key", key).
		Int64("size", size).
		Msg("Bundle archived")
	return key, link, nil
}
