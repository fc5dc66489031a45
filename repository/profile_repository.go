// Package repository persists pipeline results outside the output directory.
package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"glider-processor/models"
)

// ErrNoSummary is returned when no summary was stored for a deployment
// variant.
var ErrNoSummary = errors.New("no stored profile summary")

// ProfileRepository stores the profile summary of every committed variant
// so later runs can propagate without recomputing the raw variant.
type ProfileRepository interface {
	SaveSummary(runID, deployment string, variant models.Variant, summary models.ProfileSummary) error
	LoadSummary(deployment string, variant models.Variant) (models.ProfileSummary, string, error)
	Close() error
}

// SQLiteProfileRepository implements ProfileRepository using SQLite.
type SQLiteProfileRepository struct {
	db     *sql.DB
	DBPath string
}

// NewSQLiteProfileRepository opens (or creates) the database at dbPath.
func NewSQLiteProfileRepository(dbPath string) (*SQLiteProfileRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		deployment TEXT NOT NULL,
		variant TEXT NOT NULL,
		profiles INTEGER NOT NULL,
		committed_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS profiles (
		deployment TEXT NOT NULL,
		variant TEXT NOT NULL,
		profile_index INTEGER NOT NULL,
		direction INTEGER NOT NULL,
		start_time REAL NOT NULL,
		end_time REAL NOT NULL,
		start_depth REAL,
		end_depth REAL,
		samples INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		PRIMARY KEY(deployment, variant, profile_index)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_deployment ON runs(deployment, variant);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteProfileRepository{db: db, DBPath: dbPath}, nil
}

// Close closes the database connection.
func (r *SQLiteProfileRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveSummary replaces the stored summary of a deployment variant in one
// transaction.
func (r *SQLiteProfileRepository) SaveSummary(runID, deployment string, variant models.Variant, summary models.ProfileSummary) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM profiles WHERE deployment = ? AND variant = ?`, deployment, string(variant)); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear %s/%s: %w", deployment, variant, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO profiles(deployment, variant, profile_index, direction,
			start_time, end_time, start_depth, end_depth, samples, run_id)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range summary {
		if _, err := stmt.Exec(
			deployment,
			string(variant),
			p.Index,
			int(p.Direction),
			p.StartTime,
			p.EndTime,
			nullable(p.StartDepth),
			nullable(p.EndDepth),
			p.Samples,
			runID,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert profile %d of %s/%s: %w", p.Index, deployment, variant, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO runs(run_id, deployment, variant, profiles, committed_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
		profiles=excluded.profiles,
		committed_at=excluded.committed_at`,
		runID, deployment, string(variant), len(summary), time.Now().UTC()); err != nil {
		tx.Rollback()
		return fmt.Errorf("record run %s: %w", runID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LoadSummary returns the stored summary of a deployment variant, ordered by
// profile index, and the run that wrote it.
func (r *SQLiteProfileRepository) LoadSummary(deployment string, variant models.Variant) (models.ProfileSummary, string, error) {
	rows, err := r.db.Query(`
		SELECT profile_index, direction, start_time, end_time, start_depth, end_depth, samples, run_id
		FROM profiles
		WHERE deployment = ? AND variant = ?
		ORDER BY profile_index`, deployment, string(variant))
	if err != nil {
		return nil, "", fmt.Errorf("query %s/%s: %w", deployment, variant, err)
	}
	defer rows.Close()

	var (
		out   models.ProfileSummary
		runID string
	)
	for rows.Next() {
		var (
			p          models.ProfileRecord
			dir        int
			start, end sql.NullFloat64
		)
		if err := rows.Scan(&p.Index, &dir, &p.StartTime, &p.EndTime, &start, &end, &p.Samples, &runID); err != nil {
			return nil, "", fmt.Errorf("scan row: %w", err)
		}
		p.Direction = models.Direction(dir)
		p.StartDepth = fromNullable(start)
		p.EndDepth = fromNullable(end)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("row iteration: %w", err)
	}
	if len(out) == 0 {
		return nil, "", fmt.Errorf("%s/%s: %w", deployment, variant, ErrNoSummary)
	}
	return out, runID, nil
}

// Runs returns the ids of every committed run of a deployment, oldest first.
func (r *SQLiteProfileRepository) Runs(deployment string) ([]string, error) {
	rows, err := r.db.Query(`SELECT run_id FROM runs WHERE deployment = ? ORDER BY committed_at, rowid`, deployment)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
