package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite audit store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEntry scans a row into an Entry. Criteria lists are stored as JSON
// text columns.
func scanEntry(s scanner) (*Entry, error) {
	entry := &Entry{}
	var met, missing string

	err := s.Scan(
		&entry.ID, &entry.PatientID, &entry.DrugName, &entry.PayerID,
		&entry.AuthorizationRequired, &entry.GapsFound,
		&met, &missing, &entry.TrackingID, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(met), &entry.MetCriteria); err != nil {
		return nil, fmt.Errorf("failed to decode met criteria: %w", err)
	}
	if err := json.Unmarshal([]byte(missing), &entry.MissingCriteria); err != nil {
		return nil, fmt.Errorf("failed to decode missing criteria: %w", err)
	}
	return entry, nil
}

func marshalCriteria(criteria []string) (string, error) {
	if criteria == nil {
		criteria = []string{}
	}
	data, err := json.Marshal(criteria)
	if err != nil {
		return "", fmt.Errorf("failed to encode criteria: %w", err)
	}
	return string(data), nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS evaluations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id TEXT NOT NULL,
		drug_name TEXT NOT NULL,
		payer_id TEXT NOT NULL,
		authorization_required INTEGER NOT NULL DEFAULT 1,
		gaps_found INTEGER NOT NULL DEFAULT 0,
		met_criteria TEXT NOT NULL DEFAULT '[]',
		missing_criteria TEXT NOT NULL DEFAULT '[]',
		tracking_id TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_evaluations_patient_id ON evaluations(patient_id);
	CREATE INDEX IF NOT EXISTS idx_evaluations_created_at ON evaluations(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save appends an evaluation entry to the log.
func (s *SQLiteStore) Save(ctx context.Context, entry *Entry) error {
	met, err := marshalCriteria(entry.MetCriteria)
	if err != nil {
		return err
	}
	missing, err := marshalCriteria(entry.MissingCriteria)
	if err != nil {
		return err
	}

	now := time.Now()
	entry.CreatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluations (
			patient_id, drug_name, payer_id,
			authorization_required, gaps_found,
			met_criteria, missing_criteria, tracking_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.PatientID,
		entry.DrugName,
		entry.PayerID,
		entry.AuthorizationRequired,
		entry.GapsFound,
		met,
		missing,
		entry.TrackingID,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	entry.ID = id

	return nil
}

const selectColumns = `id, patient_id, drug_name, payer_id,
		authorization_required, gaps_found,
		met_criteria, missing_criteria, tracking_id, created_at`

// List returns entries ordered newest first, with pagination.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM evaluations
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListByPatient returns entries for one patient, newest first.
func (s *SQLiteStore) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM evaluations
		WHERE patient_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]*Entry, error) {
	var result []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// Count returns the total number of entries.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM evaluations").Scan(&count)
	return count, err
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
