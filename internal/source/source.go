// Package source models the places session trees are read from: the local
// machine, a WSL distribution, a Windows user profile or an ssh host whose
// trees are mirrored locally.
package source

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/baaaaaaaka/agent_history/internal/checkpoint"
	"github.com/baaaaaaaka/agent_history/internal/config"
	"github.com/baaaaaaaka/agent_history/internal/pathcodec"
	"github.com/baaaaaaaka/agent_history/internal/ssh"
)

type Kind string

const (
	KindLocal   Kind = "local"
	KindWSL     Kind = pathcodec.CachedKindWSL
	KindWindows Kind = pathcodec.CachedKindWindows
	KindRemote  Kind = pathcodec.CachedKindRemote
)

var ErrUnknownKind = errors.New("unknown source kind")

// Test hooks.
var (
	runtimeGOOS = runtime.GOOS
	inWSL       = IsWSL
	statDir     = func(p string) bool {
		st, err := os.Stat(p)
		return err == nil && st.IsDir()
	}
)

type Source struct {
	Kind Kind
	// Name is the distro, Windows user or ssh host. Empty for local.
	Name string
	// Home is the directory holding backend roots as seen from this machine.
	// For remote sources it is the local home that holds the mirrors.
	Home string
	SSH  ssh.Config
}

func Local(home string) Source {
	return Source{Kind: KindLocal, Home: home}
}

// Parse reads a source reference such as local, wsl:Ubuntu or remote:box.
func Parse(ref string) (Source, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.EqualFold(ref, string(KindLocal)) {
		return Source{Kind: KindLocal}, nil
	}
	kind, name, ok := strings.Cut(ref, ":")
	if !ok || strings.TrimSpace(name) == "" {
		return Source{}, fmt.Errorf("source %q: want kind:name", ref)
	}
	k, err := parseKind(kind)
	if err != nil {
		return Source{}, err
	}
	if k == KindLocal {
		return Source{Kind: KindLocal}, nil
	}
	return Source{Kind: k, Name: strings.TrimSpace(name)}, nil
}

func parseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindLocal:
		return KindLocal, nil
	case KindWSL:
		return KindWSL, nil
	case KindWindows:
		return KindWindows, nil
	case KindRemote, "ssh":
		return KindRemote, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// FromSettings builds a Source from a config.toml entry. localHome is used
// for remote mirrors and as the local home.
func FromSettings(s config.SourceSettings, localHome string) (Source, error) {
	kind, err := parseKind(s.Kind)
	if err != nil {
		return Source{}, err
	}
	src := Source{Kind: kind, Name: strings.TrimSpace(s.Name), Home: strings.TrimSpace(s.Home)}
	if kind != KindLocal && src.Name == "" {
		return Source{}, fmt.Errorf("source of kind %s needs a name", kind)
	}
	switch kind {
	case KindLocal:
		src.Name = ""
		if src.Home == "" {
			src.Home = localHome
		}
	case KindRemote:
		src.Home = localHome
		src.SSH = ssh.Config{
			Host:           src.Name,
			Port:           s.Port,
			User:           s.User,
			ExtraArgs:      append([]string(nil), s.SSHArgs...),
			BatchMode:      true,
			ConnectTimeout: 5 * time.Second,
		}
	case KindWindows:
		if src.Home == "" {
			src.Home = "/mnt/c/Users/" + src.Name
		}
	}
	return src, nil
}

func (s Source) ID() string {
	if s.Kind == KindLocal || s.Kind == "" {
		return string(KindLocal)
	}
	return string(s.Kind) + ":" + s.Name
}

func (s Source) String() string { return s.ID() }

// CachePrefix is the prefix of directories mirroring this source, empty for
// the local source.
func (s Source) CachePrefix() string {
	if s.Kind == KindLocal || s.Kind == "" {
		return ""
	}
	return pathcodec.CachedPrefix(string(s.Kind), s.Name)
}

// Mirrored reports whether the source is read through local mirrors.
func (s Source) Mirrored() bool {
	return s.Kind == KindRemote
}

// Top scopes backend roots to the entries belonging to this source.
func (s Source) Top() checkpoint.TopFilter {
	if s.Mirrored() {
		return checkpoint.OnlyPrefix(s.CachePrefix())
	}
	return checkpoint.AllEntries
}

// LenientProbing reports whether directory probes should accept any
// existing path. drvfs and 9p mounts report unreliable file types.
func (s Source) LenientProbing() bool {
	return s.Kind == KindWindows || s.Kind == KindWSL
}

// DecodeBase returns the directory that stands for the root of the encoded
// workspace name on this machine, or "" when the workspace cannot be probed
// from here.
func (s Source) DecodeBase(encoded string) string {
	letter, drive := pathcodec.DriveLetter(encoded)
	switch s.Kind {
	case KindRemote:
		return ""
	case KindWSL:
		if drive {
			if runtimeGOOS == "windows" {
				return letter + `:\`
			}
			return ""
		}
		return pathcodec.WSLUNCPath(s.Name, "/")
	case KindWindows:
		if drive {
			return mountPoint(letter)
		}
		return ""
	}
	if drive {
		if runtimeGOOS == "windows" {
			return letter + `:\`
		}
		if inWSL() {
			return mountPoint(letter)
		}
		return ""
	}
	if runtimeGOOS == "windows" {
		return ""
	}
	return "/"
}

func mountPoint(letter string) string {
	p := "/mnt/" + strings.ToLower(letter)
	if !statDir(p) {
		return ""
	}
	return p
}
