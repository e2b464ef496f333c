package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a SQLite-backed run store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a run database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL journaling plus a busy timeout keeps concurrent readers working
	// while a pipeline process writes its run record.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		tool TEXT NOT NULL,
		tool_version TEXT,
		subject_id TEXT,
		fsdir TEXT,
		outdir TEXT,
		status TEXT NOT NULL,
		error TEXT,
		inputs TEXT,
		started_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_subject ON runs(subject_id, started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(run *Run) error {
	inputs, err := json.Marshal(run.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal inputs: %w", err)
	}

	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO runs
		(id, tool, tool_version, subject_id, fsdir, outdir, status, error, inputs, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Tool, run.ToolVersion, run.SubjectID, run.FSDir, run.OutDir,
		run.Status, run.Error, string(inputs), run.StartedAt, run.CompletedAt)

	return err
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, tool, tool_version, subject_id, fsdir, outdir, status, error, inputs, started_at, completed_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	return run, err
}

// GetAllRuns returns every recorded run, most recent first.
func (s *SQLiteStore) GetAllRuns() []*Run {
	return s.queryRuns(`
		SELECT id, tool, tool_version, subject_id, fsdir, outdir, status, error, inputs, started_at, completed_at
		FROM runs ORDER BY started_at DESC
	`)
}

// GetSubjectRuns returns the runs recorded for one subject, most recent first.
func (s *SQLiteStore) GetSubjectRuns(subjectID string) []*Run {
	return s.queryRuns(`
		SELECT id, tool, tool_version, subject_id, fsdir, outdir, status, error, inputs, started_at, completed_at
		FROM runs WHERE subject_id = ? ORDER BY started_at DESC
	`, subjectID)
}

// CompleteRun marks a run finished with the given status and error message.
func (s *SQLiteStore) CompleteRun(id string, status string, errorMsg string) error {
	result, err := s.db.Exec(`
		UPDATE runs SET status = ?, error = ?, completed_at = ? WHERE id = ?
	`, status, errorMsg, time.Now(), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRunNotFound
	}

	return nil
}

// CountByStatus returns the number of runs per status.
func (s *SQLiteStore) CountByStatus() map[string]int {
	counts := map[string]int{}

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return counts
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			continue
		}
		counts[status] = n
	}

	return counts
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) queryRuns(query string, args ...interface{}) []*Run {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return []*Run{}
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}

	return runs
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var inputsJSON sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&run.ID, &run.Tool, &run.ToolVersion, &run.SubjectID, &run.FSDir,
		&run.OutDir, &run.Status, &run.Error, &inputsJSON, &run.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if inputsJSON.Valid && inputsJSON.String != "" && inputsJSON.String != "null" {
		if err := json.Unmarshal([]byte(inputsJSON.String), &run.Inputs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal inputs: %w", err)
		}
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	return &run, nil
}
