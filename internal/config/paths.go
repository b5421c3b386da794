package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvConfigDir = "AGENT_HISTORY_CONFIG_DIR"
	appDirName   = "agent-history"
)

// Dir resolves the application-owned directory holding settings and index state.
func Dir(override string) (string, error) {
	if v := strings.TrimSpace(override); v != "" {
		return filepath.Clean(os.ExpandEnv(v)), nil
	}
	if v := strings.TrimSpace(os.Getenv(EnvConfigDir)); v != "" {
		return filepath.Clean(os.ExpandEnv(v)), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appDirName), nil
}

// Paths lists the files kept under the config dir.
type Paths struct {
	Root string
}

func (p Paths) Settings() string {
	return filepath.Join(p.Root, "config.toml")
}

func (p Paths) HashIndex() string {
	return filepath.Join(p.Root, "hash_index.json")
}

// Checkpoint returns the checkpoint file for one backend as seen from one source.
func (p Paths) Checkpoint(backendID, sourceID string) string {
	return filepath.Join(p.Root, "checkpoints", backendID+"-"+fileSafe(sourceID)+".json")
}

func (p Paths) StatsDB() string {
	return filepath.Join(p.Root, "stats.db")
}

func (p Paths) Log() string {
	return filepath.Join(p.Root, "logs", "agent-history.log")
}

func fileSafe(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "local"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
