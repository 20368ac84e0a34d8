package stubserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fpang/speech-enhancer/internal/audio"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// mockMetrics are the fixed results the real service reports before its
// signal-processing pipeline is wired in.
var mockMetrics = map[string]float64{
	"signal_power":                25.5,
	"noise_power":                 5.2,
	"snr_input":                   13.8,
	"wiener_filter_gain":          0.8,
	"spectral_subtraction_factor": 0.75,
	"spectral_distance":           0.12,
	"segmental_snr":               18.5,
	"processing_duration":         2.3,
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{
		"status":    "running",
		"message":   "Speech Enhancement System Backend",
		"version":   Version,
		"timestamp": time.Now().Format(time.RFC3339),
	}, http.StatusOK)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Allow some headroom for the multipart envelope.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonError(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Filename == "" {
		jsonError(w, "No file selected", http.StatusBadRequest)
		return
	}
	ext := extensionOf(header.Filename)
	if !audio.IsSupported("." + ext) {
		jsonError(w, "unsupported format", http.StatusUnsupportedMediaType)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.maxUploadBytes {
		jsonError(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	f := s.storeFile(header.Filename, ext, data)
	log.Info().
		Int("fileId", f.ID).
		Str("name", f.Name).
		Str("sessionName", r.FormValue("session_name")).
		Int("sizeBytes", len(data)).
		Msg("Stub file stored")

	jsonResponse(w, map[string]interface{}{
		"success":   true,
		"file_id":   f.ID,
		"file_name": f.Name,
		"file_size": len(data),
	}, http.StatusOK)
}

func (s *Server) handleInitRecording(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DurationSeconds *float64 `json:"duration_seconds"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}
	duration := 30.0
	if req.DurationSeconds != nil {
		duration = *req.DurationSeconds
	}

	rec := &recording{ID: uuid.NewString(), DurationSeconds: duration}
	s.mu.Lock()
	s.recordings[rec.ID] = rec
	s.mu.Unlock()

	jsonResponse(w, map[string]interface{}{
		"success":          true,
		"recording_id":     rec.ID,
		"duration_seconds": duration,
		"status":           "recording",
	}, http.StatusOK)
}

func (s *Server) handleSaveRecording(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes*4/3+(1<<20))
	var req struct {
		RecordingID string `json:"recording_id"`
		AudioData   string `json:"audio_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	rec, ok := s.recordings[req.RecordingID]
	s.mu.Unlock()
	if !ok {
		jsonError(w, "Recording not found", http.StatusNotFound)
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		jsonError(w, "audio_data is not valid base64", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		jsonError(w, "audio_data is empty", http.StatusBadRequest)
		return
	}

	f := s.storeFile(fmt.Sprintf("recording_%s.wav", rec.ID), "wav", data)
	s.mu.Lock()
	rec.Saved = true
	s.mu.Unlock()

	jsonResponse(w, map[string]interface{}{
		"success":      true,
		"file_id":      f.ID,
		"recording_id": rec.ID,
		"status":       "saved",
	}, http.StatusOK)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID json.RawMessage `json:"file_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	fileID, ok := parseFileID(strings.Trim(string(req.FileID), `"`))
	if !ok {
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	f, exists := s.files[fileID]
	var job *stubJob
	if exists {
		job = &stubJob{
			ID:       uuid.NewString(),
			FileID:   fileID,
			Status:   "pending",
			Progress: 0,
			fail:     strings.HasPrefix(f.Name, FailPrefix),
		}
		s.jobs[job.ID] = job
	}
	s.mu.Unlock()

	if !exists {
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}

	log.Info().Str("jobId", job.ID).Int("fileId", fileID).Msg("Stub job created")
	jsonResponse(w, map[string]interface{}{
		"success":  true,
		"job_id":   job.ID,
		"status":   "started",
		"progress": 0,
	}, http.StatusOK)
}

// handleStatus reports the job and then advances it one step, so the first
// query always sees the job as created.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	s.mu.Lock()
	job, ok := s.jobs[jobID]
	var body map[string]interface{}
	if ok {
		body = map[string]interface{}{
			"job_id":        job.ID,
			"status":        job.Status,
			"progress":      job.Progress,
			"error_message": nil,
		}
		if job.ErrorMessage != "" {
			body["error_message"] = job.ErrorMessage
		}
		s.advance(job)
	}
	s.mu.Unlock()

	if !ok {
		jsonError(w, "Job not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, body, http.StatusOK)
}

// advance moves a job forward by one step. Callers hold s.mu.
func (s *Server) advance(job *stubJob) {
	switch job.Status {
	case "completed", "failed":
		return
	case "pending":
		job.Status = "processing"
		return
	}

	job.Progress += s.progressStep
	if job.fail && job.Progress >= 50 {
		job.Progress = 50
		job.Status = "failed"
		job.ErrorMessage = "Error processing audio"
		return
	}
	if job.Progress >= 100 {
		job.Progress = 100
		job.Status = "completed"
	}
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	s.mu.Lock()
	job, ok := s.jobs[jobID]
	var status string
	if ok {
		status = job.Status
	}
	s.mu.Unlock()

	if !ok {
		jsonError(w, "Job not found", http.StatusNotFound)
		return
	}
	if status != "completed" {
		jsonError(w, "Processing not completed", http.StatusBadRequest)
		return
	}

	jsonResponse(w, map[string]interface{}{
		"job_id":  jobID,
		"status":  status,
		"metrics": mockMetrics,
	}, http.StatusOK)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID, ok := parseFileID(chi.URLParam(r, "fileID"))
	if !ok {
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	f, exists := s.files[fileID]
	s.mu.Unlock()
	if !exists {
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", audio.MIMEType(f.Name))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="enhanced_%s"`, f.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(f.Data)
}

func (s *Server) storeFile(name, format string, data []byte) *storedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := &storedFile{ID: s.nextFileID, Name: name, Format: format, Data: data}
	s.files[f.ID] = f
	s.nextFileID++
	return f
}

func parseFileID(raw string) (int, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
