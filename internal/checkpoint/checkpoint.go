// Package checkpoint keeps an incremental index of session files for
// backends whose on-disk layout does not reveal the workspace, so listings
// avoid reopening every file on each run.
package checkpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/baaaaaaaka/agent_history/internal/config"
	"github.com/baaaaaaaka/agent_history/internal/logger"
)

const SchemaVersion = 1

// markerLayout is the day granularity of LastScanMarker.
const markerLayout = "2006-01-02"

var ErrSchemaMismatch = errors.New("checkpoint schema mismatch")

// Checkpoint maps every indexed session file to its workspace identifier.
type Checkpoint struct {
	SchemaVersion int `json:"schema_version"`
	// LastScanMarker is the day of the last completed scan, empty when the
	// tree has never been scanned.
	LastScanMarker string            `json:"last_scan_marker"`
	Sessions       map[string]string `json:"sessions"`
}

func New() *Checkpoint {
	return &Checkpoint{SchemaVersion: SchemaVersion, Sessions: map[string]string{}}
}

// Marker parses LastScanMarker in loc. ok is false when no scan completed.
func (c *Checkpoint) Marker(loc *time.Location) (time.Time, bool) {
	if c == nil || c.LastScanMarker == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(markerLayout, c.LastScanMarker, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (c *Checkpoint) setMarker(t time.Time) {
	c.LastScanMarker = t.Format(markerLayout)
}

func (c *Checkpoint) validate() error {
	if c.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: have %d, want %d", ErrSchemaMismatch, c.SchemaVersion, SchemaVersion)
	}
	if c.Sessions == nil {
		c.Sessions = map[string]string{}
	}
	if c.LastScanMarker != "" {
		if _, err := time.Parse(markerLayout, c.LastScanMarker); err != nil {
			return fmt.Errorf("bad last_scan_marker %q: %w", c.LastScanMarker, err)
		}
	}
	return nil
}

// Store persists one checkpoint file.
type Store struct {
	file *config.StateFile
}

func NewStore(path string) (*Store, error) {
	file, err := config.NewStateFile(path)
	if err != nil {
		return nil, err
	}
	return &Store{file: file}, nil
}

func (s *Store) Path() string {
	return s.file.Path()
}

// Load returns the stored checkpoint. A missing, corrupt or foreign-version
// file yields a fresh empty checkpoint; Load never fails.
func (s *Store) Load() *Checkpoint {
	cp := New()
	found, err := s.file.Read(cp)
	return s.normalize(cp, found, err)
}

// Save atomically replaces the stored checkpoint.
func (s *Store) Save(cp *Checkpoint) error {
	if cp == nil {
		cp = New()
	}
	cp.SchemaVersion = SchemaVersion
	return s.file.Write(cp)
}

// Update loads the checkpoint, runs fn and saves the result while holding the
// file lock, so concurrent updates of the same file are serialized. Nothing is
// saved when fn fails.
func (s *Store) Update(fn func(cp *Checkpoint) error) error {
	return s.file.Locked(func(read func(any) (bool, error), write func(any) error) error {
		cp := New()
		found, err := read(cp)
		cp = s.normalize(cp, found, err)
		if err := fn(cp); err != nil {
			return err
		}
		cp.SchemaVersion = SchemaVersion
		return write(cp)
	})
}

func (s *Store) normalize(cp *Checkpoint, found bool, readErr error) *Checkpoint {
	log := logger.WithComponent("checkpoint")
	if readErr != nil {
		log.Warn("discarding unreadable checkpoint", "path", s.file.Path(), "err", readErr)
		return New()
	}
	if !found {
		return New()
	}
	if err := cp.validate(); err != nil {
		log.Warn("discarding checkpoint", "path", s.file.Path(), "err", err)
		return New()
	}
	return cp
}
