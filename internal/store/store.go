// Package store persists the outcome of finished enhancement sessions so
// `enhance history` can list them after the process exits.
//
// Three backends share the HistoryStore interface: SQLite for local use,
// DynamoDB for a shared table (single-table layout, PK SESSION#{id}, SK
// RESULT, TTL attribute expiresAt) and an in-memory map for tests.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fpang/speech-enhancer/internal/domain"
)

// RecordTTL is how long DynamoDB keeps a history record.
const RecordTTL = 30 * 24 * time.Hour

// DefaultListLimit caps ListRecords when the caller passes a non-positive limit.
const DefaultListLimit = 20

// Outcome values stored on a Record.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Record is the persisted summary of one session that reached a terminal state.
// A retried session keeps its ID, so a later outcome replaces the earlier one.
type Record struct {
	SessionID    string `json:"sessionId" dynamodbav:"-"`
	ArtifactName string `json:"artifactName" dynamodbav:"artifactName"`
	ArtifactKind string `json:"artifactKind" dynamodbav:"artifactKind"`
	FileID       string `json:"fileId,omitempty" dynamodbav:"fileId,omitempty"`
	JobID        string `json:"jobId,omitempty" dynamodbav:"jobId,omitempty"`
	Outcome      string `json:"outcome" dynamodbav:"outcome"`
	ErrorKind    string `json:"errorKind,omitempty" dynamodbav:"errorKind,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty" dynamodbav:"errorMessage,omitempty"`
	PollAttempts int    `json:"pollAttempts" dynamodbav:"pollAttempts"`

	// Unix milliseconds; zero when unknown.
	SubmittedAt int64 `json:"submittedAt,omitempty" dynamodbav:"submittedAt,omitempty"`
	FinishedAt  int64 `json:"finishedAt" dynamodbav:"finishedAt"`

	Results *domain.ResultSet `json:"results,omitempty" dynamodbav:"results,omitempty"`
}

// Duration returns the time from submission to the terminal state.
func (r Record) Duration() time.Duration {
	if r.SubmittedAt == 0 || r.FinishedAt < r.SubmittedAt {
		return 0
	}
	return time.Duration(r.FinishedAt-r.SubmittedAt) * time.Millisecond
}

// HistoryStore defines the persistence interface for session history.
// Implementations are safe for concurrent use.
//
// GetRecord returns (nil, nil) when the record does not exist.
// PutRecord performs full-item replacement (upsert semantics).
// ListRecords returns the newest records first.
type HistoryStore interface {
	PutRecord(ctx context.Context, rec *Record) error
	GetRecord(ctx context.Context, sessionID string) (*Record, error)
	ListRecords(ctx context.Context, limit int) ([]Record, error)
}

// MemoryStore is an in-process HistoryStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

var _ HistoryStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) PutRecord(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.SessionID] = *rec
	return nil
}

func (m *MemoryStore) GetRecord(ctx context.Context, sessionID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[sessionID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) ListRecords(ctx context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	m.mu.RUnlock()
	return newestFirst(out, limit), nil
}

func newestFirst(recs []Record, limit int) []Record {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].FinishedAt != recs[j].FinishedAt {
			return recs[i].FinishedAt > recs[j].FinishedAt
		}
		return recs[i].SessionID < recs[j].SessionID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}
