package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fpang/speech-enhancer/internal/domain"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const historySchema = `
	CREATE TABLE IF NOT EXISTS history (
		sessionId    TEXT PRIMARY KEY,
		artifactName TEXT NOT NULL,
		artifactKind TEXT NOT NULL,
		fileId       TEXT NOT NULL DEFAULT '',
		jobId        TEXT NOT NULL DEFAULT '',
		outcome      TEXT NOT NULL,
		errorKind    TEXT NOT NULL DEFAULT '',
		errorMessage TEXT NOT NULL DEFAULT '',
		pollAttempts INTEGER NOT NULL DEFAULT 0,
		submittedAt  INTEGER NOT NULL DEFAULT 0,
		finishedAt   INTEGER NOT NULL,
		results      TEXT
	);
	CREATE INDEX IF NOT EXISTS history_finished ON history(finishedAt DESC);
`

// SQLiteStore implements HistoryStore on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ HistoryStore = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the history database at path.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	log.Debug().Str("path", path).Msg("History database opened")
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) PutRecord(ctx context.Context, rec *Record) error {
	var results sql.NullString
	if rec.Results != nil {
		data, err := json.Marshal(rec.Results)
		if err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
		results = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (sessionId, artifactName, artifactKind, fileId, jobId, outcome,
			errorKind, errorMessage, pollAttempts, submittedAt, finishedAt, results)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sessionId) DO UPDATE SET
			artifactName = excluded.artifactName,
			artifactKind = excluded.artifactKind,
			fileId = excluded.fileId,
			jobId = excluded.jobId,
			outcome = excluded.outcome,
			errorKind = excluded.errorKind,
			errorMessage = excluded.errorMessage,
			pollAttempts = excluded.pollAttempts,
			submittedAt = excluded.submittedAt,
			finishedAt = excluded.finishedAt,
			results = excluded.results
	`, rec.SessionID, rec.ArtifactName, rec.ArtifactKind, rec.FileID, rec.JobID, rec.Outcome,
		rec.ErrorKind, rec.ErrorMessage, rec.PollAttempts, rec.SubmittedAt, rec.FinishedAt, results)
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.SessionID, err)
	}

	log.Debug().Str("sessionId", rec.SessionID).Str("outcome", rec.Outcome).Msg("History record persisted")
	return nil
}

const selectRecord = `
	SELECT sessionId, artifactName, artifactKind, fileId, jobId, outcome,
		errorKind, errorMessage, pollAttempts, submittedAt, finishedAt, results
	FROM history`

func (s *SQLiteStore) GetRecord(ctx context.Context, sessionID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+` WHERE sessionId = ?`, sessionID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", sessionID, err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, selectRecord+` ORDER BY finishedAt DESC, sessionId ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var results sql.NullString
	if err := row.Scan(&rec.SessionID, &rec.ArtifactName, &rec.ArtifactKind, &rec.FileID, &rec.JobID,
		&rec.Outcome, &rec.ErrorKind, &rec.ErrorMessage, &rec.PollAttempts,
		&rec.SubmittedAt, &rec.FinishedAt, &results); err != nil {
		return nil, err
	}
	if results.Valid {
		var rs domain.ResultSet
		if err := json.Unmarshal([]byte(results.String), &rs); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
		rec.Results = &rs
	}
	return &rec, nil
}
