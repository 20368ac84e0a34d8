// Package stubserver is an in-memory stand-in for the speech enhancement
// service. It implements every endpoint the transport adapter calls, with
// simulated progress, so the client can be exercised end to end without
// the real signal-processing backend.
package stubserver

import (
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	// DefaultMaxUploadBytes matches the real service's upload cap.
	DefaultMaxUploadBytes = 100 << 20

	// DefaultProgressStep is how far a job advances per status query.
	DefaultProgressStep = 25

	// FailPrefix marks uploads whose jobs should fail halfway through.
	FailPrefix = "fail_"

	// Version is reported by the health endpoint.
	Version = "1.0"
)

// Option configures a Server.
type Option func(*Server)

// WithProgressStep sets how many percentage points a job advances per
// status query.
func WithProgressStep(step int) Option {
	return func(s *Server) {
		if step > 0 {
			s.progressStep = step
		}
	}
}

// WithMaxUploadBytes overrides DefaultMaxUploadBytes.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithAllowedOrigins sets the CORS origins. Defaults to "*".
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithAPIKey requires "Authorization: Bearer <key>" on every request.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// Server holds the stub's in-memory state.
type Server struct {
	progressStep   int
	maxUploadBytes int64
	allowedOrigins []string
	apiKey         string

	mu         sync.Mutex
	nextFileID int
	files      map[int]*storedFile
	recordings map[string]*recording
	jobs       map[string]*stubJob
}

type storedFile struct {
	ID     int
	Name   string
	Format string
	Data   []byte
}

type recording struct {
	ID              string
	DurationSeconds float64
	Saved           bool
}

type stubJob struct {
	ID           string
	FileID       int
	Status       string
	Progress     int
	ErrorMessage string
	fail         bool
}

// New creates a Server.
func New(opts ...Option) *Server {
	s := &Server{
		progressStep:   DefaultProgressStep,
		maxUploadBytes: DefaultMaxUploadBytes,
		nextFileID:     1,
		files:          make(map[int]*storedFile),
		recordings:     make(map[string]*recording),
		jobs:           make(map[string]*stubJob),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler serving the service API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(cors.Handler(corsOptions(s.allowedOrigins)))
	if s.apiKey != "" {
		r.Use(requireBearer(s.apiKey))
	}

	r.Get("/", s.handleHealth)
	r.Post("/upload", s.handleUpload)
	r.Post("/record", s.handleInitRecording)
	r.Post("/record/save", s.handleSaveRecording)
	r.Post("/process", s.handleProcess)
	r.Get("/process/{jobID}/status", s.handleStatus)
	r.Get("/results/{jobID}", s.handleResults)
	r.Get("/download/{fileID}", s.handleDownload)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, "Endpoint not found", http.StatusNotFound)
	})

	return r
}

// JobCount returns the number of jobs created so far.
func (s *Server) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func extensionOf(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}
