package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/baaaaaaaka/agent_history/internal/aggregate"
	"github.com/baaaaaaaka/agent_history/internal/backend"
	"github.com/baaaaaaaka/agent_history/internal/config"
	"github.com/baaaaaaaka/agent_history/internal/hashindex"
	"github.com/baaaaaaaka/agent_history/internal/logger"
	"github.com/baaaaaaaka/agent_history/internal/orchestrator"
	"github.com/baaaaaaaka/agent_history/internal/source"
	"github.com/baaaaaaaka/agent_history/internal/ssh"
)

// Replaced in tests.
var commandRunner ssh.Runner = ssh.ExecRunner{}

func (o *rootOptions) paths() (config.Paths, error) {
	dir, err := config.Dir(o.configDir)
	if err != nil {
		return config.Paths{}, fmt.Errorf("resolve config dir: %w", err)
	}
	return config.Paths{Root: dir}, nil
}

func (o *rootOptions) homeDir() (string, error) {
	if h := strings.TrimSpace(o.home); h != "" {
		return h, nil
	}
	return os.UserHomeDir()
}

// app bundles what every listing command needs.
type app struct {
	paths    config.Paths
	settings config.Settings
	home     string
	registry *backend.Registry
	hashes   *hashindex.Index
	agg      *aggregate.Aggregator
	orch     *orchestrator.Orchestrator
}

func newApp(root *rootOptions) (*app, error) {
	paths, err := root.paths()
	if err != nil {
		return nil, err
	}
	settings, err := config.LoadSettings(paths.Settings())
	if err != nil {
		return nil, err
	}
	home, err := root.homeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	hashes, err := hashindex.Open(paths.HashIndex())
	if err != nil {
		return nil, err
	}

	registry := backend.DefaultRegistry()
	agg := &aggregate.Aggregator{
		Registry:    registry,
		Hashes:      hashes,
		Paths:       paths,
		Counts:      backend.NewCountCache(),
		Mirror:      aggregate.SSHFetcher{Mirror: source.SSHMirror{Runner: commandRunner}},
		AnyExisting: settings.AnyExisting,
		Log:         logger.WithComponent("aggregate"),
	}
	return &app{
		paths:    paths,
		settings: settings,
		home:     home,
		registry: registry,
		hashes:   hashes,
		agg:      agg,
		orch:     orchestrator.New(agg),
	}, nil
}

// sources returns every known source, or only those named in refs.
func (a *app) sources(ctx context.Context, refs []string) ([]source.Source, error) {
	d := source.Discoverer{Home: a.home, Runner: commandRunner}
	all := d.Discover(ctx, a.settings)
	if len(refs) == 0 {
		return all, nil
	}
	var out []source.Source
	for _, ref := range refs {
		want, err := source.Parse(ref)
		if err != nil {
			return nil, err
		}
		found := false
		for _, s := range all {
			if s.ID() == want.ID() {
				out = append(out, s)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown source %q (see `agent-history sources`)", ref)
		}
	}
	return out, nil
}

// learnHashes records the current directory in the hash index when a
// hash-scheme backend already has sessions for it. It reports whether an
// entry was added.
func (a *app) learnHashes(cwd string) bool {
	log := logger.WithComponent("hashindex")
	learned := false
	for _, b := range a.registry.All() {
		lister, ok := b.(interface{ HashDirs(root string) []string })
		if !ok {
			continue
		}
		added, err := a.hashes.Learn(cwd, lister.HashDirs(b.Root(a.home)))
		if err != nil {
			log.Warn("learning workspace hash failed", "backend", b.ID(), "err", err)
			continue
		}
		if added {
			learned = true
			log.Debug("learned workspace hash", "backend", b.ID(), "path", cwd)
		}
	}
	return learned
}
