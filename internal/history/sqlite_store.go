// Package history keeps a persistent journal of analysis runs using SQLite.
package history

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cytobridge/client/internal/gating"
	"github.com/cytobridge/client/internal/session"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Outcome is the final state of a recorded run.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// timeLayout keeps stored timestamps fixed width so they sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one dispatched analysis.
type Run struct {
	ID           string    `json:"run_id"`
	SessionID    string    `json:"session_id"`
	FileName     string    `json:"file_name"`
	ChannelX     string    `json:"channel_x"`
	ChannelY     string    `json:"channel_y"`
	AutoDetect   bool      `json:"auto_detect"`
	NPopulations int       `json:"n_populations"`
	Outcome      Outcome   `json:"outcome"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Error        string    `json:"error,omitempty"`
	Events       int       `json:"events"`
	Populations  int       `json:"populations"`
	Detected     int       `json:"populations_identified,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	FinishedAt   time.Time `json:"finished_at"`
}

// RunFromOutcome converts an orchestrator outcome into a journal entry.
func RunFromOutcome(o session.Outcome) *Run {
	run := &Run{
		ID:           uuid.New().String(),
		SessionID:    o.Request.SessionID,
		FileName:     o.Request.Upload.Name,
		ChannelX:     o.Params.ChannelX,
		ChannelY:     o.Params.ChannelY,
		AutoDetect:   o.Request.Selection.AutoDetect,
		NPopulations: o.Params.NPopulations,
		DurationMS:   o.Duration.Milliseconds(),
		FinishedAt:   time.Now().UTC(),
	}
	if o.Err != nil {
		status := gating.StatusFailed(o.Err)
		run.Outcome = OutcomeFailed
		run.ErrorKind = status.Kind.String()
		run.Error = status.Message
		return run
	}

	run.Outcome = OutcomeSucceeded
	if resp := o.Response; resp != nil {
		run.Events = len(resp.GatedDataSample)
		run.Populations = countPopulations(resp.GatedDataSample)
		if resp.AutoDetected {
			run.Detected = resp.PopulationsIdentified
		}
	}
	return run
}

func countPopulations(sample gating.Sample) int {
	seen := make(map[int]struct{})
	for _, rec := range sample {
		id, ok := rec.Population()
		if !ok {
			id = gating.Unassigned
		}
		seen[id] = struct{}{}
	}
	return len(seen)
}

// Store provides persistent storage for analysis runs.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens or creates the journal at dbPath.
func NewStore(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		file_name TEXT NOT NULL DEFAULT '',
		channel_x TEXT NOT NULL,
		channel_y TEXT NOT NULL,
		auto_detect INTEGER NOT NULL,
		n_populations INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		error_kind TEXT DEFAULT '',
		error TEXT DEFAULT '',
		events INTEGER DEFAULT 0,
		populations INTEGER DEFAULT 0,
		detected INTEGER DEFAULT 0,
		duration_ms INTEGER DEFAULT 0,
		finished_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
	CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Insert stores run.
func (s *Store) Insert(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, session_id, file_name, channel_x, channel_y, auto_detect, n_populations,
			outcome, error_kind, error, events, populations, detected, duration_ms, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.SessionID,
		run.FileName,
		run.ChannelX,
		run.ChannelY,
		run.AutoDetect,
		run.NPopulations,
		string(run.Outcome),
		run.ErrorKind,
		run.Error,
		run.Events,
		run.Populations,
		run.Detected,
		run.DurationMS,
		run.FinishedAt.UTC().Format(timeLayout),
	)
	return err
}

// RecordRun stores a dispatched analysis. Failures are logged, not returned.
func (s *Store) RecordRun(o session.Outcome) {
	run := RunFromOutcome(o)
	if err := s.Insert(run); err != nil {
		log.Printf("[History] failed to record run for session %s: %v", run.SessionID, err)
	}
}

const selectRuns = `
	SELECT run_id, session_id, file_name, channel_x, channel_y, auto_detect, n_populations,
		outcome, error_kind, error, events, populations, detected, duration_ms, finished_at
	FROM runs`

// Get retrieves a run by ID. It returns nil when the run does not exist.
func (s *Store) Get(runID string) (*Run, error) {
	rows, err := s.db.Query(selectRuns+" WHERE run_id = ?", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// List returns the most recent runs first. An empty sessionID lists every
// session; limit <= 0 means no limit.
func (s *Store) List(sessionID string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}

	var (
		rows *sql.Rows
		err  error
	)
	if sessionID == "" {
		rows, err = s.db.Query(selectRuns+" ORDER BY finished_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query(selectRuns+" WHERE session_id = ? ORDER BY finished_at DESC LIMIT ?", sessionID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRuns(rows)
}

// DeleteExpired deletes runs that finished more than retentionDays ago.
func (s *Store) DeleteExpired(retentionDays int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(timeLayout)
	result, err := s.db.Exec("DELETE FROM runs WHERE finished_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanRuns(rows *sql.Rows) ([]*Run, error) {
	var runs []*Run
	for rows.Next() {
		var run Run
		var finishedAtStr string

		err := rows.Scan(
			&run.ID,
			&run.SessionID,
			&run.FileName,
			&run.ChannelX,
			&run.ChannelY,
			&run.AutoDetect,
			&run.NPopulations,
			&run.Outcome,
			&run.ErrorKind,
			&run.Error,
			&run.Events,
			&run.Populations,
			&run.Detected,
			&run.DurationMS,
			&finishedAtStr,
		)
		if err != nil {
			return nil, err
		}
		run.FinishedAt, _ = time.Parse(timeLayout, finishedAtStr)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
