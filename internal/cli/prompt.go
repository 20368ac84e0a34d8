package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// PromptForFile asks for an audio file path on in. Returns "" if the user
// enters nothing.
func PromptForFile(in io.Reader, out io.Writer) string {
	fmt.Fprint(out, "Audio file (mp3, wav, flac, ogg): ")

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		log.Warn().Err(err).Msg("Failed to read input")
		return ""
	}

	return strings.Trim(strings.TrimSpace(input), `"'`)
}
