package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fpang/speech-enhancer/internal/domain"
	"github.com/fpang/speech-enhancer/internal/store"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// FormatProgressBar renders progress (0..100) as a fixed-width bar.
func FormatProgressBar(progress, width int) string {
	if width <= 0 {
		width = 30
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	filled := progress * width / 100
	return fmt.Sprintf("[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat("-", width-filled), progress)
}

// WriteResults prints the eight enhancement metrics as an aligned table.
func WriteResults(w io.Writer, rs domain.ResultSet) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := []struct {
		label string
		value string
	}{
		{"Signal power", fmt.Sprintf("%.3f", rs.SignalPower)},
		{"Noise power", fmt.Sprintf("%.3f", rs.NoisePower)},
		{"Input SNR", fmt.Sprintf("%.2f dB", rs.SNRInput)},
		{"Wiener filter gain", fmt.Sprintf("%.3f", rs.WienerFilterGain)},
		{"Spectral subtraction factor", fmt.Sprintf("%.3f", rs.SpectralSubtractionFactor)},
		{"Spectral distance", fmt.Sprintf("%.3f", rs.SpectralDistance)},
		{"Segmental SNR", fmt.Sprintf("%.2f dB", rs.SegmentalSNR)},
		{"Processing time", fmt.Sprintf("%.2fs", rs.ProcessingDurationSeconds)},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r.label, r.value)
	}
	return tw.Flush()
}

// WriteHistory prints one line per history record, newest first.
func WriteHistory(w io.Writer, recs []store.Record) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "No sessions recorded yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tSESSION\tINPUT\tOUTCOME\tDURATION\tDETAIL")
	for _, r := range recs {
		finished := "-"
		if r.FinishedAt > 0 {
			finished = time.UnixMilli(r.FinishedAt).Local().Format("2006-01-02 15:04")
		}
		duration := "-"
		if d := r.Duration(); d > 0 {
			duration = FormatDurationShort(d)
		}
		detail := r.ErrorMessage
		if r.Results != nil {
			detail = fmt.Sprintf("segmental SNR %.2f dB", r.Results.SegmentalSNR)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", finished, shortID(r.SessionID), r.ArtifactName, r.Outcome, duration, detail)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
