package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultConcurrency    = 1
	DefaultTimeoutSeconds = 30
)

// SourceSettings describes one configured source in config.toml.
type SourceSettings struct {
	// Kind is one of local, wsl, windows, remote.
	Kind string `toml:"kind"`
	// Name is the distro, Windows user or ssh host.
	Name string `toml:"name"`
	// Home overrides the home directory of the source.
	Home    string   `toml:"home,omitempty"`
	User    string   `toml:"user,omitempty"`
	Port    int      `toml:"port,omitempty"`
	SSHArgs []string `toml:"ssh_args,omitempty"`
}

// ID matches the source identifiers used in session records.
func (s SourceSettings) ID() string {
	kind := strings.ToLower(strings.TrimSpace(s.Kind))
	if kind == "" || kind == "local" {
		return "local"
	}
	return kind + ":" + strings.TrimSpace(s.Name)
}

// Settings is the user-editable config.toml.
type Settings struct {
	Concurrency    int              `toml:"concurrency"`
	TimeoutSeconds int              `toml:"timeout_seconds"`
	IncludeCached  bool             `toml:"include_cached"`
	AnyExisting    bool             `toml:"any_existing_dirs"`
	Sources        []SourceSettings `toml:"sources"`
}

func DefaultSettings() Settings {
	return Settings{
		Concurrency:    DefaultConcurrency,
		TimeoutSeconds: DefaultTimeoutSeconds,
	}
}

func (s Settings) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// LoadSettings reads config.toml. A missing file yields defaults.
func LoadSettings(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	s := DefaultSettings()
	if err := toml.Unmarshal(b, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if s.Concurrency <= 0 {
		s.Concurrency = DefaultConcurrency
	}
	return s, nil
}

func SaveSettings(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	b, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return atomicWriteFile(path, b, 0o600)
}

func (s Settings) FindSource(ref string) (SourceSettings, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return SourceSettings{}, false
	}
	for _, src := range s.Sources {
		if src.ID() == ref || strings.EqualFold(src.Name, ref) {
			return src, true
		}
	}
	return SourceSettings{}, false
}

func (s *Settings) UpsertSource(src SourceSettings) {
	for i := range s.Sources {
		if s.Sources[i].ID() == src.ID() {
			s.Sources[i] = src
			return
		}
	}
	s.Sources = append(s.Sources, src)
}

func (s *Settings) RemoveSource(id string) bool {
	for i := range s.Sources {
		if s.Sources[i].ID() != id {
			continue
		}
		s.Sources = append(s.Sources[:i], s.Sources[i+1:]...)
		return true
	}
	return false
}
