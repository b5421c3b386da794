package source

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/baaaaaaaka/agent_history/internal/config"
	"github.com/baaaaaaaka/agent_history/internal/logger"
	"github.com/baaaaaaaka/agent_history/internal/pathcodec"
	"github.com/baaaaaaaka/agent_history/internal/ssh"
)

// Directories under a backend-carrying home that mark it as worth listing.
var homeMarkers = []string{".claude", ".codex", ".gemini"}

var systemProfiles = map[string]bool{
	"all users":    true,
	"default":      true,
	"default user": true,
	"public":       true,
	"wsagent":      true,
}

// Discoverer finds the sources reachable from this machine.
type Discoverer struct {
	Home string
	// Runner executes wsl.exe on Windows hosts.
	Runner ssh.Runner
	// UsersDir is where Windows profiles are mounted inside WSL.
	UsersDir string
}

// Discover returns the local source, WSL distributions when running on
// Windows, Windows profiles when running inside WSL and every source from
// settings. Settings entries replace discovered sources with the same ID.
func (d Discoverer) Discover(ctx context.Context, settings config.Settings) []Source {
	log := logger.WithComponent("source")
	byID := map[string]Source{}
	var order []string
	add := func(s Source) {
		if _, ok := byID[s.ID()]; !ok {
			order = append(order, s.ID())
		}
		byID[s.ID()] = s
	}

	add(Local(d.Home))
	switch {
	case runtimeGOOS == "windows":
		for _, s := range d.wslDistros(ctx) {
			add(s)
		}
	case inWSL():
		for _, s := range d.windowsProfiles() {
			add(s)
		}
	}
	for _, cfg := range settings.Sources {
		s, err := FromSettings(cfg, d.Home)
		if err != nil {
			log.Warn("ignoring configured source", "source", cfg.ID(), "err", err)
			continue
		}
		add(s)
	}

	out := make([]Source, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func (d Discoverer) wslDistros(ctx context.Context) []Source {
	log := logger.WithComponent("source")
	runner := d.Runner
	if runner == nil {
		runner = ssh.ExecRunner{}
	}
	out, err := runner.Run(ctx, "wsl.exe", "-l", "-q")
	if err != nil {
		log.Debug("wsl.exe listing failed", "err", err)
		return nil
	}
	var sources []Source
	for _, distro := range parseDistroList(out) {
		homeOut, err := runner.Run(ctx, "wsl.exe", "-d", distro, "-e", "printenv", "HOME")
		if err != nil {
			log.Debug("wsl home lookup failed", "source", "wsl:"+distro, "err", err)
			continue
		}
		home := strings.TrimSpace(string(homeOut))
		if !strings.HasPrefix(home, "/") {
			continue
		}
		sources = append(sources, Source{Kind: KindWSL, Name: distro, Home: pathcodec.WSLUNCPath(distro, home)})
	}
	return sources
}

// parseDistroList decodes `wsl.exe -l -q` output, which is UTF-16LE on
// most Windows builds and UTF-8 when WSL_UTF8 is set.
func parseDistroList(out []byte) []string {
	text := string(out)
	if looksUTF16LE(out) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		if decoded, _, err := transform.Bytes(dec, out); err == nil {
			text = string(decoded)
		}
	}
	var distros []string
	for _, line := range strings.Split(text, "\n") {
		name := strings.TrimSpace(strings.Trim(line, "\x00\r\ufeff"))
		if name == "" || strings.HasPrefix(strings.ToLower(name), "docker-desktop") {
			continue
		}
		distros = append(distros, name)
	}
	return distros
}

func looksUTF16LE(b []byte) bool {
	if bytes.HasPrefix(b, []byte{0xff, 0xfe}) {
		return true
	}
	return len(b) >= 2 && b[1] == 0 && b[0] != 0
}

func (d Discoverer) windowsProfiles() []Source {
	usersDir := d.UsersDir
	if usersDir == "" {
		usersDir = "/mnt/c/Users"
	}
	entries, err := os.ReadDir(usersDir)
	if err != nil {
		return nil
	}
	var sources []Source
	for _, e := range entries {
		if !e.IsDir() || systemProfiles[strings.ToLower(e.Name())] {
			continue
		}
		home := filepath.Join(usersDir, e.Name())
		if !hasMarker(home) {
			continue
		}
		sources = append(sources, Source{Kind: KindWindows, Name: e.Name(), Home: home})
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources
}

func hasMarker(home string) bool {
	for _, m := range homeMarkers {
		if statDir(filepath.Join(home, m)) {
			return true
		}
	}
	return false
}
