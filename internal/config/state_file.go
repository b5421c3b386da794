package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// StateFile is a JSON document guarded by an in-process mutex and a
// cross-process file lock. Writes replace the whole file atomically.
type StateFile struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

func NewStateFile(path string) (*StateFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &StateFile{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

func (s *StateFile) Path() string {
	return s.path
}

// Read decodes the file into v under a shared lock. found is false when the
// file does not exist yet.
func (s *StateFile) Read(v any) (found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.RLock(); err != nil {
		return false, fmt.Errorf("lock %s: %w", s.path, err)
	}
	defer func() { _ = s.lock.Unlock() }()

	return s.readUnlocked(v)
}

// Write encodes v and atomically replaces the file under an exclusive lock.
func (s *StateFile) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", s.path, err)
	}
	defer func() { _ = s.lock.Unlock() }()

	return s.writeUnlocked(v)
}

// Locked runs fn while holding the exclusive lock. fn receives read/write
// helpers that must not be used after it returns.
func (s *StateFile) Locked(fn func(read func(any) (bool, error), write func(any) error) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", s.path, err)
	}
	defer func() { _ = s.lock.Unlock() }()

	return fn(s.readUnlocked, s.writeUnlocked)
}

func (s *StateFile) readUnlocked(v any) (bool, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", s.path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return true, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return true, nil
}

func (s *StateFile) writeUnlocked(v any) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(s.path), err)
	}
	b = append(b, '\n')
	if err := atomicWriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("atomic write %s: %w", s.path, err)
	}
	return nil
}
