package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/fpang/speech-enhancer/internal/apperr"
	"github.com/fpang/speech-enhancer/internal/audio"
	"github.com/fpang/speech-enhancer/internal/auth"
	"github.com/rs/zerolog/log"
)

// ValidateAndResolveFile checks that the path is an existing regular file
// with a supported audio extension and returns its absolute path.
func ValidateAndResolveFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperr.Input("file not found: " + path)
		}
		return "", apperr.Input("cannot access " + path + ": " + err.Error())
	}
	if info.IsDir() {
		return "", apperr.Input(path + " is a directory")
	}
	if !audio.IsSupported(filepath.Ext(path)) {
		return "", apperr.Input("unsupported format " + strings.ToLower(filepath.Ext(path)) + " (want mp3, wav, flac or ogg)")
	}

	absPath, err := filepath.Abs(path)
	if err == nil {
		path = absPath
	}
	return path, nil
}

// ErrorHint returns the user-facing explanation for an error.
func ErrorHint(err error) string {
	if errors.Is(err, auth.ErrNoAPIKey) {
		return "No API key configured. Set ENHANCER_API_KEY or ENHANCER_SSM_API_KEY_PARAM"
	}
	switch apperr.KindOf(err) {
	case apperr.KindInput:
		return "Invalid input: " + apperr.DisplayMessage(err)
	case apperr.KindState:
		return "Not allowed right now: " + apperr.DisplayMessage(err)
	case apperr.KindNetwork:
		return "Network error. Is the enhancement service running and reachable?"
	case apperr.KindServer:
		return "The enhancement service reported an error: " + apperr.DisplayMessage(err)
	case apperr.KindTimeout:
		return "Processing did not finish in time. Try again or raise --max-attempts"
	case apperr.KindNotFound:
		return "Not found: " + apperr.DisplayMessage(err)
	default:
		return apperr.DisplayMessage(err)
	}
}

// HandleError logs the error with its hint and exits.
func HandleError(err error) {
	log.Fatal().Err(err).Str("kind", apperr.KindOf(err).String()).Msg(ErrorHint(err))
}
