package transport

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fpang/speech-enhancer/internal/domain"
)

// --- Request bodies ---

type initRecordingRequest struct {
	DurationSeconds float64 `json:"duration_seconds"`
}

type saveRecordingRequest struct {
	RecordingID string `json:"recording_id"`
	AudioData   string `json:"audio_data"`
}

type processRequest struct {
	FileID json.RawMessage `json:"file_id"`
}

// --- Response bodies ---

// uploadResponse is returned by /upload and /record/save. The service
// issues integer file ids; strings are accepted too.
type uploadResponse struct {
	FileID json.RawMessage `json:"file_id"`
}

type initRecordingResponse struct {
	RecordingID string `json:"recording_id"`
}

type processResponse struct {
	JobID string `json:"job_id"`
}

type statusResponse struct {
	Status       string  `json:"status"`
	Progress     *int    `json:"progress"`
	ErrorMessage *string `json:"error_message"`
}

type metricsBody struct {
	SignalPower               *float64 `json:"signal_power"`
	NoisePower                *float64 `json:"noise_power"`
	SNRInput                  *float64 `json:"snr_input"`
	WienerFilterGain          *float64 `json:"wiener_filter_gain"`
	SpectralSubtractionFactor *float64 `json:"spectral_subtraction_factor"`
	SpectralDistance          *float64 `json:"spectral_distance"`
	SegmentalSNR              *float64 `json:"segmental_snr"`
	ProcessingDuration        *float64 `json:"processing_duration"`
}

type resultsResponse struct {
	Metrics *metricsBody `json:"metrics"`
}

// --- Validation ---

// idString normalizes a JSON string or number id into its string form.
func idString(raw json.RawMessage) (string, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return "", fmt.Errorf("missing id")
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return "", fmt.Errorf("bad id: %w", err)
		}
		if str == "" {
			return "", fmt.Errorf("empty id")
		}
		return str, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id is neither string nor number: %s", s)
	}
	return n.String(), nil
}

// fileIDJSON encodes a file id the way the service issued it: numeric ids
// go back as numbers, everything else as strings.
func fileIDJSON(fileID string) json.RawMessage {
	var n json.Number
	if err := json.Unmarshal([]byte(fileID), &n); err == nil {
		return json.RawMessage(n.String())
	}
	b, _ := json.Marshal(fileID)
	return b
}

func (r statusResponse) toReport() (domain.StatusReport, error) {
	status := domain.JobStatus(r.Status)
	if !status.Valid() {
		return domain.StatusReport{}, fmt.Errorf("unknown job status %q", r.Status)
	}
	if r.Progress == nil {
		return domain.StatusReport{}, fmt.Errorf("missing progress")
	}
	if *r.Progress < 0 || *r.Progress > 100 {
		return domain.StatusReport{}, fmt.Errorf("progress %d out of range", *r.Progress)
	}

	report := domain.StatusReport{Status: status, Progress: *r.Progress}
	if r.ErrorMessage != nil {
		report.ErrorMessage = *r.ErrorMessage
	}
	return report, nil
}

func (r resultsResponse) toResultSet() (domain.ResultSet, error) {
	m := r.Metrics
	if m == nil {
		return domain.ResultSet{}, fmt.Errorf("missing metrics")
	}

	fields := []struct {
		name string
		v    *float64
	}{
		{"signal_power", m.SignalPower},
		{"noise_power", m.NoisePower},
		{"snr_input", m.SNRInput},
		{"wiener_filter_gain", m.WienerFilterGain},
		{"spectral_subtraction_factor", m.SpectralSubtractionFactor},
		{"spectral_distance", m.SpectralDistance},
		{"segmental_snr", m.SegmentalSNR},
		{"processing_duration", m.ProcessingDuration},
	}
	var missing []string
	for _, f := range fields {
		if f.v == nil {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return domain.ResultSet{}, fmt.Errorf("missing metrics: %s", strings.Join(missing, ", "))
	}

	return domain.ResultSet{
		SignalPower:               *m.SignalPower,
		NoisePower:                *m.NoisePower,
		SNRInput:                  *m.SNRInput,
		WienerFilterGain:          *m.WienerFilterGain,
		SpectralSubtractionFactor: *m.SpectralSubtractionFactor,
		SpectralDistance:          *m.SpectralDistance,
		SegmentalSNR:              *m.SegmentalSNR,
		ProcessingDurationSeconds: *m.ProcessingDuration,
	}, nil
}
