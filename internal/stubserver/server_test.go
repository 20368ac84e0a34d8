package stubserver

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func uploadRequest(t *testing.T, url, name string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", name)
	part.Write(data)
	mw.WriteField("session_name", "test")
	mw.Close()

	resp, err := http.Post(url+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestUploadAssignsIntegerFileIDs(t *testing.T) {
	server := httptest.NewServer(New().Router())
	defer server.Close()

	first := decodeBody(t, uploadRequest(t, server.URL, "a.wav", []byte("one")))
	second := decodeBody(t, uploadRequest(t, server.URL, "b.mp3", []byte("two")))

	if first["file_id"] != float64(1) || second["file_id"] != float64(2) {
		t.Errorf("expected file ids 1 and 2, got %v and %v", first["file_id"], second["file_id"])
	}
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	server := httptest.NewServer(New().Router())
	defer server.Close()

	resp := uploadRequest(t, server.URL, "notes.aiff", []byte("data"))
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["error"] != "unsupported format" {
		t.Errorf("unexpected error body: %v", body)
	}
}

func TestUploadEnforcesSizeCap(t *testing.T) {
	server := httptest.NewServer(New(WithMaxUploadBytes(8)).Router())
	defer server.Close()

	resp := uploadRequest(t, server.URL, "big.wav", bytes.Repeat([]byte("x"), 64))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestJobProgressesToCompletion(t *testing.T) {
	server := httptest.NewServer(New(WithProgressStep(50)).Router())
	defer server.Close()

	uploadRequest(t, server.URL, "a.wav", []byte("one")).Body.Close()
	resp, _ := http.Post(server.URL+"/process", "application/json", strings.NewReader(`{"file_id": 1}`))
	jobID := decodeBody(t, resp)["job_id"].(string)

	var statuses []string
	var progress []float64
	for i := 0; i < 5; i++ {
		resp, err := http.Get(server.URL + "/process/" + jobID + "/status")
		if err != nil {
			t.Fatalf("status request: %v", err)
		}
		body := decodeBody(t, resp)
		statuses = append(statuses, body["status"].(string))
		progress = append(progress, body["progress"].(float64))
	}

	want := []string{"pending", "processing", "processing", "completed", "completed"}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("expected statuses %v, got %v", want, statuses)
		}
	}
	if progress[3] != 100 {
		t.Errorf("expected progress 100 at completion, got %v", progress)
	}

	resp, _ = http.Get(server.URL + "/results/" + jobID)
	metrics := decodeBody(t, resp)["metrics"].(map[string]interface{})
	if len(metrics) != 8 || metrics["segmental_snr"] != 18.5 {
		t.Errorf("unexpected metrics: %v", metrics)
	}
}

func TestResultsBeforeCompletion(t *testing.T) {
	server := httptest.NewServer(New().Router())
	defer server.Close()

	uploadRequest(t, server.URL, "a.wav", []byte("one")).Body.Close()
	resp, _ := http.Post(server.URL+"/process", "application/json", strings.NewReader(`{"file_id": "1"}`))
	jobID := decodeBody(t, resp)["job_id"].(string)

	resp, _ = http.Get(server.URL + "/results/" + jobID)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, _ = http.Get(server.URL + "/results/unknown")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestFailPrefixFailsJob(t *testing.T) {
	server := httptest.NewServer(New(WithProgressStep(50)).Router())
	defer server.Close()

	uploadRequest(t, server.URL, FailPrefix+"a.wav", []byte("one")).Body.Close()
	resp, _ := http.Post(server.URL+"/process", "application/json", strings.NewReader(`{"file_id": 1}`))
	jobID := decodeBody(t, resp)["job_id"].(string)

	var last map[string]interface{}
	for i := 0; i < 4; i++ {
		resp, _ := http.Get(server.URL + "/process/" + jobID + "/status")
		last = decodeBody(t, resp)
	}
	if last["status"] != "failed" || last["error_message"] != "Error processing audio" {
		t.Errorf("expected failed job, got %v", last)
	}
}

func TestProcessUnknownFile(t *testing.T) {
	server := httptest.NewServer(New().Router())
	defer server.Close()

	resp, _ := http.Post(server.URL+"/process", "application/json", strings.NewReader(`{"file_id": 99}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDownload(t *testing.T) {
	server := httptest.NewServer(New().Router())
	defer server.Close()

	uploadRequest(t, server.URL, "a.wav", []byte("audio-bytes")).Body.Close()

	resp, err := http.Get(server.URL + "/download/1")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "audio/wav" {
		t.Errorf("expected audio/wav, got %s", got)
	}

	missing, _ := http.Get(server.URL + "/download/42")
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", missing.StatusCode)
	}
	missing.Body.Close()
}

func TestRecordingFlow(t *testing.T) {
	server := httptest.NewServer(New().Router())
	defer server.Close()

	resp, _ := http.Post(server.URL+"/record", "application/json", strings.NewReader(`{"duration_seconds": 3}`))
	recID := decodeBody(t, resp)["recording_id"].(string)

	body := `{"recording_id": "` + recID + `", "audio_data": "UklGRg=="}`
	resp, _ = http.Post(server.URL+"/record/save", "application/json", strings.NewReader(body))
	saved := decodeBody(t, resp)
	if saved["file_id"] != float64(1) || saved["status"] != "saved" {
		t.Errorf("unexpected save response: %v", saved)
	}

	resp, _ = http.Post(server.URL+"/record/save", "application/json",
		strings.NewReader(`{"recording_id": "nope", "audio_data": "UklGRg=="}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown recording, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAPIKeyRequired(t *testing.T) {
	server := httptest.NewServer(New(WithAPIKey("secret")).Router())
	defer server.Close()

	resp, _ := http.Get(server.URL + "/")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with key, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
