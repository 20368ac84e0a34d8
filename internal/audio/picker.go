package audio

import (
	"errors"
	"fmt"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// ErrPickCanceled is returned when the user closes the dialog without
// choosing a file.
var ErrPickCanceled = errors.New("file selection canceled")

// dialogPatterns mirrors SupportedExtensions for the native file dialog.
var dialogPatterns = []string{"*.mp3", "*.wav", "*.flac", "*.ogg"}

// PickFile opens a native file dialog filtered to supported audio formats
// and returns the selected path.
func PickFile() (string, error) {
	selected, err := zenity.SelectFile(
		zenity.Title("Select audio to enhance"),
		zenity.FileFilters{
			{Name: "Audio files", Patterns: dialogPatterns},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", ErrPickCanceled
		}
		log.Error().Err(err).Msg("File picker failed")
		return "", fmt.Errorf("file picker: %w", err)
	}

	log.Info().Str("path", selected).Msg("File picked via native dialog")
	return selected, nil
}
