package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const lockPollInterval = 25 * time.Millisecond

// FileStore keeps each document as <name>.json under a data directory.
// Every access takes an exclusive advisory lock on a sidecar <name>.lock
// file, so separate processes (server, admin CLI) never interleave writes.
// A per-name in-process mutex serializes goroutines of the same process,
// since fcntl locks are held per process, not per file descriptor owner.
type FileStore struct {
	dir      string
	lockWait time.Duration

	mu    sync.Mutex
	names map[string]*sync.Mutex
}

// NewFileStore creates the data directory if needed and returns a store
// over it. lockWait bounds how long a single operation blocks on a
// document lock before failing with ErrLockTimeout.
func NewFileStore(dir string, lockWait time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}
	return &FileStore{
		dir:      dir,
		lockWait: lockWait,
		names:    make(map[string]*sync.Mutex),
	}, nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, name string, out any) error {
	unlock, err := s.acquire(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := s.read(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse document %q: %w", name, err)
	}
	return nil
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, name string, doc any) error {
	unlock, err := s.acquire(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document %q: %w", name, err)
	}
	return s.replace(name, data)
}

// Update implements Store. The lock is held across the read, fn, and the
// atomic replace, so no concurrent operation can observe a partial state.
func (s *FileStore) Update(ctx context.Context, name string, fn UpdateFunc) error {
	unlock, err := s.acquire(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := s.read(name)
	if err != nil {
		return err
	}
	next, err := fn(data)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	return s.replace(name, next)
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// read returns the raw document content, or "{}" when it does not exist.
// Any other read failure propagates to the caller.
func (s *FileStore) read(name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return emptyDocument, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %q: %w", name, err)
	}
	if len(data) == 0 {
		return emptyDocument, nil
	}
	return data, nil
}

// replace writes data to a temporary file and renames it over the
// document, so a crash mid-write leaves either the old or the new
// complete content on disk.
func (s *FileStore) replace(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %q: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write document %q: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to sync document %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file for %q: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace document %q: %w", name, err)
	}
	return nil
}

// acquire takes the in-process mutex for name, then the advisory file
// lock, polling until lockWait elapses. The returned func releases both.
func (s *FileStore) acquire(ctx context.Context, name string) (func(), error) {
	m := s.named(name)
	m.Lock()

	f, err := os.OpenFile(s.path(name)+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		m.Unlock()
		return nil, fmt.Errorf("failed to open lock file for %q: %w", name, err)
	}

	deadline := time.Now().Add(s.lockWait)
	for {
		ok, err := lockFile(f)
		if err != nil {
			f.Close()
			m.Unlock()
			return nil, fmt.Errorf("failed to lock document %q: %w", name, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			f.Close()
			m.Unlock()
			return nil, fmt.Errorf("document %q: %w", name, ErrLockTimeout)
		}
		select {
		case <-ctx.Done():
			f.Close()
			m.Unlock()
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}

	return func() {
		if err := unlockFile(f); err != nil {
			log.Warn().Err(err).Str("document", name).Msg("Failed to release document lock")
		}
		f.Close()
		m.Unlock()
	}, nil
}

func (s *FileStore) named(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.names[name]
	if !ok {
		m = &sync.Mutex{}
		s.names[name] = m
	}
	return m
}
