package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	defaultDescription = "COLCON user data"
	defaultVersion     = "1.0"
	defaultLockRetry   = 25 * time.Millisecond

	snapshotPrefix = "users-"
	snapshotSuffix = ".json"
)

// StoreOptions configures a FileStore.
type StoreOptions struct {
	Path        string
	Description string
	Version     string
	// LockRetry is the poll interval while waiting for the file lock.
	LockRetry time.Duration
	Now       func() time.Time
}

// FileStore persists the registration Document as a single JSON file.
//
// Every access goes through one writer: a mutex for goroutines of this
// process and an flock on "<path>.lock" for other processes. Writes replace
// the file atomically via rename, so a reader never sees a partial document.
type FileStore struct {
	mu          sync.Mutex
	path        string
	lock        *flock.Flock
	description string
	version     string
	retry       time.Duration
	now         func() time.Time
}

// NewFileStore prepares a store rooted at opts.Path. The document itself is
// created lazily on first access.
func NewFileStore(opts StoreOptions) (*FileStore, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("registration: store path required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("registration: create store dir: %w", err)
	}
	s := &FileStore{
		path:        opts.Path,
		lock:        flock.New(opts.Path + ".lock"),
		description: opts.Description,
		version:     opts.Version,
		retry:       opts.LockRetry,
		now:         opts.Now,
	}
	if s.description == "" {
		s.description = defaultDescription
	}
	if s.version == "" {
		s.version = defaultVersion
	}
	if s.retry <= 0 {
		s.retry = defaultLockRetry
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Path returns the location of the document on disk.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the current document, creating a seeded one when absent.
func (s *FileStore) Load(ctx context.Context) (*Document, error) {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.loadLocked()
}

// Update reads the document, applies fn and writes the result back. When fn
// fails nothing is written and its error is returned untouched.
func (s *FileStore) Update(ctx context.Context, fn func(*Document) error) (*Document, error) {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		return nil, err
	}
	stamp := s.now().UTC()
	doc.LastUpdate = &stamp
	if err := s.saveLocked(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Snapshot copies the current document into dir and keeps only the newest
// retain snapshots there. A retain of zero or less disables pruning.
func (s *FileStore) Snapshot(ctx context.Context, dir string, retain int) (string, error) {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return "", err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return "", err
	}
	name := snapshotPrefix + s.now().UTC().Format("20060102T150405.000000000") + "Z" + snapshotSuffix
	target := filepath.Join(dir, name)
	if err := writeFileAtomic(target, data); err != nil {
		return "", fmt.Errorf("%w: write snapshot: %w", ErrPersistence, err)
	}
	if err := pruneSnapshots(dir, retain); err != nil {
		return target, fmt.Errorf("%w: prune snapshots: %w", ErrPersistence, err)
	}
	return target, nil
}

func (s *FileStore) acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()
	locked, err := s.lock.TryLockContext(ctx, s.retry)
	if err == nil && !locked {
		err = ctx.Err()
	}
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: acquire lock: %w", ErrPersistence, err)
	}
	return func() {
		_ = s.lock.Unlock()
		s.mu.Unlock()
	}, nil
}

// loadLocked reads the document (caller must hold the lock).
func (s *FileStore) loadLocked() (*Document, error) {
	data, err := os.ReadFile(s.path) //nolint:gosec // path comes from trusted configuration
	if err != nil {
		if os.IsNotExist(err) {
			return s.seedLocked()
		}
		return nil, fmt.Errorf("%w: read store: %w", ErrPersistence, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse store: %w", ErrPersistence, err)
	}
	if doc.Users == nil {
		doc.Users = []UserRecord{}
	}
	return &doc, nil
}

func (s *FileStore) seedLocked() (*Document, error) {
	doc := &Document{
		Users: []UserRecord{},
		Metadata: Metadata{
			Description: s.description,
			Version:     s.version,
			Created:     s.now().UTC(),
		},
	}
	if err := s.saveLocked(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// saveLocked writes the document (caller must hold the lock).
func (s *FileStore) saveLocked(doc *Document) error {
	doc.TotalUsers = len(doc.Users)
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("%w: write store: %w", ErrPersistence, err)
	}
	return nil
}

func encodeDocument(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode store: %w", ErrPersistence, err)
	}
	return append(data, '\n'), nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	// Records hold plaintext passwords.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

func pruneSnapshots(dir string, retain int) error {
	if retain <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, snapshotPrefix) && strings.HasSuffix(name, snapshotSuffix) {
			names = append(names, name)
		}
	}
	if len(names) <= retain {
		return nil
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-retain] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
