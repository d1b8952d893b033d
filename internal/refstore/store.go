// Package refstore persists named reference snapshots in SQLite so a sound
// captured in one session can be matched against in the next.
package refstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/viktorkelemen/sc-repl-mcp/internal/model"
)

var ErrNotFound = errors.New("reference not found")

const schema = `
CREATE TABLE IF NOT EXISTS reference_snapshots (
	name        TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	captured_at INTEGER NOT NULL,
	analysis    TEXT NOT NULL,
	spectrum    TEXT
);
CREATE INDEX IF NOT EXISTS idx_reference_captured_at ON reference_snapshots(captured_at);
`

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put stores ref, replacing any prior snapshot with the same name. Reports
// whether an existing entry was overwritten.
func (s *Store) Put(ctx context.Context, ref model.Reference) (bool, error) {
	analysisJSON, err := json.Marshal(ref.Analysis)
	if err != nil {
		return false, fmt.Errorf("encode analysis: %w", err)
	}
	var spectrumJSON any
	if ref.Spectrum != nil {
		data, err := json.Marshal(ref.Spectrum)
		if err != nil {
			return false, fmt.Errorf("encode spectrum: %w", err)
		}
		spectrumJSON = string(data)
	}

	var existing int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reference_snapshots WHERE name = ?`, ref.Name,
	).Scan(&existing); err != nil {
		return false, fmt.Errorf("check reference: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO reference_snapshots(name, description, captured_at, analysis, spectrum)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	description=excluded.description,
	captured_at=excluded.captured_at,
	analysis=excluded.analysis,
	spectrum=excluded.spectrum
`, ref.Name, ref.Description, ref.CapturedAt.UnixMilli(), string(analysisJSON), spectrumJSON)
	if err != nil {
		return false, fmt.Errorf("upsert reference: %w", err)
	}
	return existing > 0, nil
}

func (s *Store) Get(ctx context.Context, name string) (model.Reference, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT name, description, captured_at, analysis, spectrum
FROM reference_snapshots WHERE name = ?`, name)
	ref, err := scanReference(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reference{}, fmt.Errorf("reference %q: %w", name, ErrNotFound)
	}
	return ref, err
}

// List returns all references sorted by capture time ascending.
func (s *Store) List(ctx context.Context) ([]model.Reference, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT name, description, captured_at, analysis, spectrum
FROM reference_snapshots ORDER BY captured_at ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer rows.Close()

	var out []model.Reference
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reference_snapshots WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete reference: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete reference: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("reference %q: %w", name, ErrNotFound)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanReference(row scannable) (model.Reference, error) {
	var (
		ref          model.Reference
		capturedAtMS int64
		analysisJSON string
		spectrumJSON sql.NullString
	)
	if err := row.Scan(&ref.Name, &ref.Description, &capturedAtMS, &analysisJSON, &spectrumJSON); err != nil {
		return model.Reference{}, err
	}
	ref.CapturedAt = time.UnixMilli(capturedAtMS)
	if err := json.Unmarshal([]byte(analysisJSON), &ref.Analysis); err != nil {
		return model.Reference{}, fmt.Errorf("decode analysis: %w", err)
	}
	if spectrumJSON.Valid {
		var spectrum model.Spectrum
		if err := json.Unmarshal([]byte(spectrumJSON.String), &spectrum); err != nil {
			return model.Reference{}, fmt.Errorf("decode spectrum: %w", err)
		}
		ref.Spectrum = &spectrum
	}
	return ref, nil
}
