// Package archive packs a finished session into a zip bundle holding the
// enhanced audio and a results.json summary, and optionally ships the
// bundle to S3.
package archive

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fpang/speech-enhancer/internal/domain"
	"github.com/klauspost/compress/zstd"
)

// MethodZstd is the ZIP compression method ID for Zstandard (APPNOTE 6.3.7).
const MethodZstd uint16 = 93

// ResultsEntry is the name of the JSON summary inside every bundle.
const ResultsEntry = "results.json"

func init() {
	// Level 12 maps to SpeedBestCompression in klauspost/compress.
	zip.RegisterCompressor(MethodZstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(12)))
	})
	zip.RegisterDecompressor(MethodZstd, func(r io.Reader) io.ReadCloser {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return io.NopCloser(errReader{err})
		}
		return dec.IOReadCloser()
	})
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

// Summary is the results.json document.
type Summary struct {
	SessionID    string           `json:"sessionId"`
	ArtifactName string           `json:"artifactName"`
	JobID        string           `json:"jobId"`
	AudioEntry   string           `json:"audioEntry"`
	CreatedAt    time.Time        `json:"createdAt"`
	Results      domain.ResultSet `json:"results"`
}

// Bundle describes what goes into one archive.
type Bundle struct {
	SessionID    string
	ArtifactName string
	JobID        string
	Results      domain.ResultSet

	// AudioName is the entry name for the enhanced audio; Audio supplies its bytes.
	AudioName string
	Audio     io.Reader
}

// Write streams the bundle as a zip to w.
func Write(w io.Writer, b Bundle) error {
	if b.Audio == nil {
		return errors.New("bundle has no audio")
	}
	if b.AudioName == "" {
		b.AudioName = "enhanced.wav"
	}
	now := time.Now()

	zw := zip.NewWriter(w)

	header := &zip.FileHeader{Name: b.AudioName, Method: MethodZstd}
	header.SetModTime(now)
	entry, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create ZIP entry for %s: %w", b.AudioName, err)
	}
	if _, err := io.Copy(entry, b.Audio); err != nil {
		return fmt.Errorf("write to ZIP for %s: %w", b.AudioName, err)
	}

	summary, err := json.MarshalIndent(Summary{
		SessionID:    b.SessionID,
		ArtifactName: b.ArtifactName,
		JobID:        b.JobID,
		AudioEntry:   b.AudioName,
		CreatedAt:    now.UTC(),
		Results:      b.Results,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	header = &zip.FileHeader{Name: ResultsEntry, Method: MethodZstd}
	header.SetModTime(now)
	entry, err = zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create ZIP entry for %s: %w", ResultsEntry, err)
	}
	if _, err := entry.Write(summary); err != nil {
		return fmt.Errorf("write to ZIP for %s: %w", ResultsEntry, err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("close ZIP writer: %w", err)
	}
	return nil
}

// WriteFile writes the bundle to path and returns its size. A partial file
// is removed on failure.
func WriteFile(path string, b Bundle) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create bundle: %w", err)
	}
	if err := Write(f, b); err != nil {
		f.Close()
		os.Remove(path)
		return 0, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("close bundle: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat bundle: %w", err)
	}
	return info.Size(), nil
}

// ReadSummary opens a bundle and decodes its results.json.
func ReadSummary(path string) (Summary, error) {
	var s Summary
	zr, err := zip.OpenReader(path)
	if err != nil {
		return s, fmt.Errorf("open bundle: %w", err)
	}
	defer zr.Close()

	f, err := zr.Open(ResultsEntry)
	if err != nil {
		return s, fmt.Errorf("bundle has no %s: %w", ResultsEntry, err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return s, fmt.Errorf("decode %s: %w", ResultsEntry, err)
	}
	return s, nil
}
