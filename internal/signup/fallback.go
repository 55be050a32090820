package signup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/colcon/colcon-site/internal/registration"
)

// PendingSlot is the key under which unsent registrations accumulate.
const PendingSlot = "pendingRegistration"

const schema = `
CREATE TABLE IF NOT EXISTS local_storage (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);`

// LocalStore is a small key/value store backed by sqlite. Each slot holds a
// JSON array of registration records.
type LocalStore struct {
	db *sql.DB
}

// OpenLocalStore opens (creating if needed) the sqlite database at path.
// ":memory:" is accepted for tests.
func OpenLocalStore(ctx context.Context, path string) (*LocalStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create local store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init local store: %w", err)
	}
	return &LocalStore{db: db}, nil
}

// Close releases the database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// Append adds record to the list stored under slot in one transaction.
func (s *LocalStore) Append(ctx context.Context, slot string, record registration.UserRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append[%s]: %w", slot, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	records, err := readSlot(ctx, tx, slot)
	if err != nil {
		return err
	}
	records = append(records, record)
	value, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode slot[%s]: %w", slot, err)
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO local_storage (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, slot, value); err != nil {
		return fmt.Errorf("write slot[%s]: %w", slot, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit append[%s]: %w", slot, err)
	}
	return nil
}

// List returns the records stored under slot, empty when the slot is unset.
func (s *LocalStore) List(ctx context.Context, slot string) ([]registration.UserRecord, error) {
	return readSlot(ctx, s.db, slot)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readSlot(ctx context.Context, q queryer, slot string) ([]registration.UserRecord, error) {
	var value []byte
	err := q.QueryRowContext(ctx, `SELECT value FROM local_storage WHERE key = ?`, slot).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return []registration.UserRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read slot[%s]: %w", slot, err)
	}
	var records []registration.UserRecord
	if err := json.Unmarshal(value, &records); err != nil {
		return nil, fmt.Errorf("decode slot[%s]: %w", slot, err)
	}
	if records == nil {
		records = []registration.UserRecord{}
	}
	return records, nil
}
