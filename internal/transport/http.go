package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fpang/speech-enhancer/internal/apperr"
	"github.com/fpang/speech-enhancer/internal/domain"
	"github.com/fpang/speech-enhancer/internal/jsonutil"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is where the enhancement service listens in local setups.
	DefaultBaseURL = "http://localhost:5000"

	// defaultTimeout is the HTTP client timeout for API calls.
	defaultTimeout = 30 * time.Second

	// defaultSessionName is sent with multipart uploads when none is set.
	defaultSessionName = "Untitled Session"
)

// HTTPClient talks to the enhancement service over HTTP/JSON.
type HTTPClient struct {
	httpClient  *http.Client
	timeout     time.Duration
	baseURL     string
	apiKey      string
	sessionName string
}

var _ Client = (*HTTPClient)(nil)

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *HTTPClient) { c.apiKey = key }
}

// WithHTTPClient sets the *http.Client requests are sent through. The
// client is copied, so hc itself is never modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout regardless of option order.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.timeout = d }
}

// WithSessionName sets the session_name form field sent with uploads.
func WithSessionName(name string) Option {
	return func(c *HTTPClient) { c.sessionName = name }
}

// NewHTTPClient creates a client for the service at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		sessionName: defaultSessionName,
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := &http.Client{Timeout: defaultTimeout}
	if c.httpClient != nil {
		copied := *c.httpClient
		hc = &copied
	}
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	c.httpClient = hc
	return c
}

// BaseURL returns the service root the client is bound to.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// --- Upload ---

// Upload sends the artifact and returns the service-issued file id.
// Uploaded files go through multipart /upload; recordings are registered
// with /record and then stored with /record/save.
func (c *HTTPClient) Upload(ctx context.Context, artifact domain.InputArtifact) (string, error) {
	if err := artifact.Validate(); err != nil {
		return "", err
	}
	if artifact.Kind == domain.ArtifactRecording {
		return c.uploadRecording(ctx, artifact)
	}
	return c.uploadFile(ctx, artifact)
}

func (c *HTTPClient) uploadFile(ctx context.Context, artifact domain.InputArtifact) (string, error) {
	log.Debug().
		Str("name", artifact.Name).
		Int64("sizeBytes", artifact.SizeBytes).
		Msg("Uploading audio file")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("session_name", c.sessionName); err != nil {
		return "", fmt.Errorf("write session_name field: %w", err)
	}
	part, err := mw.CreateFormFile("file", artifact.Name)
	if err != nil {
		return "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(artifact.Payload); err != nil {
		return "", fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}
	resp, err := decode[uploadResponse](body)
	if err != nil {
		return "", err
	}
	fileID, err := idString(resp.FileID)
	if err != nil {
		return "", malformed(fmt.Errorf("file_id: %w", err))
	}

	log.Info().Str("fileId", fileID).Str("name", artifact.Name).Msg("Audio file uploaded")
	return fileID, nil
}

func (c *HTTPClient) uploadRecording(ctx context.Context, artifact domain.InputArtifact) (string, error) {
	log.Debug().
		Float64("durationSeconds", *artifact.DurationSeconds).
		Int("sampleRate", artifact.SampleRate).
		Msg("Registering recording")

	body, err := c.doJSON(ctx, http.MethodPost, "/record", initRecordingRequest{
		DurationSeconds: *artifact.DurationSeconds,
	})
	if err != nil {
		return "", err
	}
	initResp, err := decode[initRecordingResponse](body)
	if err != nil {
		return "", err
	}
	if initResp.RecordingID == "" {
		return "", malformed(fmt.Errorf("missing recording_id"))
	}

	body, err = c.doJSON(ctx, http.MethodPost, "/record/save", saveRecordingRequest{
		RecordingID: initResp.RecordingID,
		AudioData:   base64.StdEncoding.EncodeToString(artifact.Payload),
	})
	if err != nil {
		return "", err
	}
	saveResp, err := decode[uploadResponse](body)
	if err != nil {
		return "", err
	}
	fileID, err := idString(saveResp.FileID)
	if err != nil {
		return "", malformed(fmt.Errorf("file_id: %w", err))
	}

	log.Info().
		Str("recordingId", initResp.RecordingID).
		Str("fileId", fileID).
		Msg("Recording uploaded")
	return fileID, nil
}

// --- Jobs ---

// StartJob asks the service to process fileID and returns the job id.
func (c *HTTPClient) StartJob(ctx context.Context, fileID string) (string, error) {
	body, err := c.doJSON(ctx, http.MethodPost, "/process", processRequest{FileID: fileIDJSON(fileID)})
	if err != nil {
		return "", err
	}
	resp, err := decode[processResponse](body)
	if err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", malformed(fmt.Errorf("missing job_id"))
	}
	log.Info().Str("fileId", fileID).Str("jobId", resp.JobID).Msg("Processing job started")
	return resp.JobID, nil
}

// GetStatus returns the current status report for jobID.
func (c *HTTPClient) GetStatus(ctx context.Context, jobID string) (domain.StatusReport, error) {
	body, err := c.do(ctx, http.MethodGet, "/process/"+url.PathEscape(jobID)+"/status", "", nil)
	if err != nil {
		return domain.StatusReport{}, err
	}
	resp, err := decode[statusResponse](body)
	if err != nil {
		return domain.StatusReport{}, err
	}
	report, err := resp.toReport()
	if err != nil {
		return domain.StatusReport{}, malformed(err)
	}
	return report, nil
}

// GetResults fetches the metrics of a completed job. DownloadRef is left
// for the caller, who knows which file the job processed.
func (c *HTTPClient) GetResults(ctx context.Context, jobID string) (domain.ResultSet, error) {
	body, err := c.do(ctx, http.MethodGet, "/results/"+url.PathEscape(jobID), "", nil)
	if err != nil {
		return domain.ResultSet{}, err
	}
	resp, err := decode[resultsResponse](body)
	if err != nil {
		return domain.ResultSet{}, err
	}
	results, err := resp.toResultSet()
	if err != nil {
		return domain.ResultSet{}, malformed(err)
	}
	return results, nil
}

// Download streams the processed audio for fileID. The caller must close
// the returned reader.
func (c *HTTPClient) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	httpResp, err := c.send(ctx, http.MethodGet, "/download/"+url.PathEscape(fileID), "", nil)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode == http.StatusNotFound {
		raw, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		return nil, apperr.NotFound(httpResp.StatusCode, jsonutil.ErrorMessage(raw))
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		raw, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		return nil, apperr.Server(httpResp.StatusCode, jsonutil.ErrorMessage(raw))
	}
	return httpResp.Body, nil
}

// --- Health ---

// HealthStatus is the service's root endpoint payload.
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}

// Health checks that the service is reachable.
func (c *HTTPClient) Health(ctx context.Context) (HealthStatus, error) {
	body, err := c.do(ctx, http.MethodGet, "/", "", nil)
	if err != nil {
		return HealthStatus{}, err
	}
	return decode[HealthStatus](body)
}

// --- Internal helpers ---

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, method, path, "application/json", bytes.NewReader(raw))
}

// do sends a request and returns the body of a 2xx response. Non-2xx
// responses become ServerErrors carrying the remote message.
func (c *HTTPClient) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	httpResp, err := c.send(ctx, method, path, contentType, body)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apperr.Network("read response", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		msg := jsonutil.ErrorMessage(raw)
		if msg == "" {
			msg = http.StatusText(httpResp.StatusCode)
		}
		log.Warn().
			Str("method", method).
			Str("path", path).
			Int("statusCode", httpResp.StatusCode).
			Str("errorMessage", msg).
			Msg("Enhancement API error")
		return nil, apperr.Server(httpResp.StatusCode, msg)
	}
	return raw, nil
}

// send performs the request. Connection-level failures are NetworkErrors.
func (c *HTTPClient) send(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	startTime := time.Now()

	log.Debug().Str("method", method).Str("path", path).Msg("Enhancement API request")
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("Enhancement API response")
		return nil, apperr.Network(fmt.Sprintf("%s %s failed", method, path), err)
	}

	log.Debug().Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Msg("Enhancement API response")
	return httpResp, nil
}

func decode[T any](raw []byte) (T, error) {
	v, err := jsonutil.Decode[T](raw)
	if err != nil {
		return v, malformed(err)
	}
	return v, nil
}

// malformed wraps a schema violation as a ServerError. The status code is
// left at zero since the HTTP exchange itself succeeded.
func malformed(err error) error {
	return &apperr.Error{Kind: apperr.KindServer, Message: "malformed response", Err: err}
}

