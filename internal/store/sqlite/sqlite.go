// Package sqlite is a pairing.Store on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/srg/beaconpair/internal/beacon"
	"github.com/srg/beaconpair/internal/pairing"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store wraps the SQLite database connection and schema lifecycle.
type Store struct {
	db *sql.DB
}

// Open initializes the database connection, creating directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema ensures the paired_beacons table exists.
func (s *Store) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS paired_beacons (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			uuid TEXT NOT NULL,
			major INTEGER NOT NULL CHECK (major BETWEEN 0 AND 65535),
			minor INTEGER NOT NULL CHECK (minor BETWEEN 0 AND 65535),
			label TEXT NOT NULL DEFAULT '',
			paired_at TEXT NOT NULL,
			UNIQUE (uuid, major, minor)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_paired_beacons_owner ON paired_beacons(owner_id);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Create implements pairing.Store.
func (s *Store) Create(ctx context.Context, p pairing.PairedBeacon) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO paired_beacons (id, owner_id, uuid, major, minor, label, paired_at) VALUES (?, ?, ?, ?, ?, ?, ?);`,
		p.ID,
		p.OwnerID,
		p.Identity.UUID,
		int(p.Identity.Major),
		int(p.Identity.Minor),
		p.Label,
		p.PairedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return pairing.ErrConflict
		}
		return fmt.Errorf("insert paired beacon: %w", err)
	}
	return nil
}

// List implements pairing.Store. Records come back in pairing order.
func (s *Store) List(ctx context.Context, ownerID string) ([]pairing.PairedBeacon, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, owner_id, uuid, major, minor, label, paired_at FROM paired_beacons WHERE owner_id = ? ORDER BY rowid;`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query paired beacons: %w", err)
	}
	defer rows.Close()

	out := make([]pairing.PairedBeacon, 0)
	for rows.Next() {
		p, err := scanPaired(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paired beacons: %w", err)
	}
	return out, nil
}

// UpdateLabel implements pairing.Store.
func (s *Store) UpdateLabel(ctx context.Context, ownerID, id, label string) (pairing.PairedBeacon, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pairing.PairedBeacon{}, fmt.Errorf("begin rename: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE paired_beacons SET label = ? WHERE id = ? AND owner_id = ?;`, label, id, ownerID)
	if err != nil {
		return pairing.PairedBeacon{}, fmt.Errorf("update label: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return pairing.PairedBeacon{}, fmt.Errorf("update label: %w", err)
	} else if n == 0 {
		return pairing.PairedBeacon{}, pairing.ErrNotFound
	}

	row := tx.QueryRowContext(ctx, `SELECT id, owner_id, uuid, major, minor, label, paired_at FROM paired_beacons WHERE id = ?;`, id)
	p, err := scanPaired(row)
	if err != nil {
		return pairing.PairedBeacon{}, err
	}
	if err := tx.Commit(); err != nil {
		return pairing.PairedBeacon{}, fmt.Errorf("commit rename: %w", err)
	}
	return p, nil
}

// Delete implements pairing.Store.
func (s *Store) Delete(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM paired_beacons WHERE id = ? AND owner_id = ?;`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete paired beacon: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete paired beacon: %w", err)
	}
	if n == 0 {
		return pairing.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaired(row rowScanner) (pairing.PairedBeacon, error) {
	var (
		p           pairing.PairedBeacon
		uuid        string
		major       int
		minor       int
		pairedAtStr string
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &uuid, &major, &minor, &p.Label, &pairedAtStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pairing.PairedBeacon{}, pairing.ErrNotFound
		}
		return pairing.PairedBeacon{}, fmt.Errorf("scan paired beacon: %w", err)
	}

	pairedAt, err := time.Parse(time.RFC3339Nano, pairedAtStr)
	if err != nil {
		return pairing.PairedBeacon{}, fmt.Errorf("parse paired_at %q: %w", pairedAtStr, err)
	}
	p.PairedAt = pairedAt
	p.Identity = beacon.Identity{UUID: uuid, Major: uint16(major), Minor: uint16(minor)}
	return p, nil
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
