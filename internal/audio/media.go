// Package audio turns files on disk into finalized input artifacts.
//
// Two producers are provided: LoadFile for arbitrary audio uploads and
// LoadRecording for finished WAV recordings, whose duration and sample rate
// are read from the RIFF header. PickFile opens a native dialog so the CLI
// can stand in for a browser file picker.
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/speech-enhancer/internal/apperr"
	"github.com/fpang/speech-enhancer/internal/domain"
)

// SupportedExtensions lists the formats the enhancement service accepts,
// mapped to their MIME types.
var SupportedExtensions = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
}

// IsSupported reports whether ext (with leading dot) is an accepted format.
func IsSupported(ext string) bool {
	_, ok := SupportedExtensions[strings.ToLower(ext)]
	return ok
}

// MIMEType returns the MIME type for a path, or application/octet-stream.
func MIMEType(path string) string {
	if mime, ok := SupportedExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "application/octet-stream"
}

// LoadFile reads an audio file into an UploadedFile artifact. Unsupported
// extensions are not rejected here; the remote service is the authority
// on accepted formats. WAV files get their duration filled in.
func LoadFile(path string) (domain.InputArtifact, error) {
	data, err := readWhole(path)
	if err != nil {
		return domain.InputArtifact{}, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	artifact := domain.InputArtifact{
		Kind:      domain.ArtifactUploadedFile,
		Payload:   data,
		Name:      filepath.Base(path),
		SizeBytes: int64(len(data)),
		Format:    strings.TrimPrefix(ext, "."),
	}

	if ext == ".wav" {
		if info, err := ParseWAV(data); err == nil {
			d := info.Duration().Seconds()
			artifact.DurationSeconds = &d
		} else {
			log.Debug().Err(err).Str("path", path).Msg("WAV header unreadable, duration unknown")
		}
	}

	if !IsSupported(ext) {
		log.Warn().Str("path", path).Str("format", artifact.Format).Msg("Format may be rejected by the enhancement service")
	}

	log.Debug().
		Str("path", path).
		Int64("sizeBytes", artifact.SizeBytes).
		Str("format", artifact.Format).
		Msg("Audio file loaded")
	return artifact, nil
}

// LoadRecording reads a finished WAV recording into a Recording artifact.
func LoadRecording(path string) (domain.InputArtifact, error) {
	data, err := readWhole(path)
	if err != nil {
		return domain.InputArtifact{}, err
	}

	info, err := ParseWAV(data)
	if err != nil {
		return domain.InputArtifact{}, &apperr.Error{
			Kind:    apperr.KindInput,
			Message: fmt.Sprintf("%s is not a usable WAV recording", filepath.Base(path)),
			Err:     err,
		}
	}

	d := info.Duration().Seconds()
	log.Debug().
		Str("path", path).
		Int("sampleRate", info.SampleRate).
		Float64("durationSeconds", d).
		Msg("Recording loaded")

	return domain.InputArtifact{
		Kind:            domain.ArtifactRecording,
		Payload:         data,
		DurationSeconds: &d,
		SampleRate:      info.SampleRate,
	}, nil
}

// readWhole reads path fully, reporting missing, unreadable and empty files
// as InputErrors.
func readWhole(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Input(fmt.Sprintf("file not found: %s", path))
		}
		return nil, &apperr.Error{Kind: apperr.KindInput, Message: "cannot access " + path, Err: err}
	}
	if info.IsDir() {
		return nil, apperr.Input(fmt.Sprintf("%s is a directory", path))
	}
	if info.Size() == 0 {
		return nil, apperr.Input(fmt.Sprintf("%s is empty", path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindInput, Message: "cannot read " + path, Err: err}
	}
	return data, nil
}
