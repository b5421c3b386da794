package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/baaaaaaaka/agent_history/internal/logger"
	"github.com/baaaaaaaka/agent_history/internal/pathcodec"
	"github.com/baaaaaaaka/agent_history/internal/ssh"
)

// MirrorStats summarizes one mirror pass.
type MirrorStats struct {
	Fetched int
	Skipped int
	Failed  int
}

// SSHMirror copies a remote backend tree into local directories named
// <prefix><entry>, where prefix is the source's cache prefix.
type SSHMirror struct {
	Runner ssh.Runner
}

// Sync mirrors every top-level entry of remoteRoot (relative to the remote
// home) into localRoot. Entries that are themselves mirrors on the remote
// are never fetched, so two hosts mirroring each other do not loop.
func (m SSHMirror) Sync(ctx context.Context, src Source, remoteRoot, localRoot string) (MirrorStats, error) {
	var stats MirrorStats
	if !src.Mirrored() {
		return stats, fmt.Errorf("source %s is not mirrored", src.ID())
	}
	runner := m.Runner
	if runner == nil {
		runner = ssh.ExecRunner{}
	}
	log := logger.WithComponent("mirror").With("source", src.ID())

	remoteRoot = filepath.ToSlash(remoteRoot)
	args, err := ssh.BuildArgs(src.SSH, ssh.ListDirCommand(remoteRoot))
	if err != nil {
		return stats, err
	}
	out, err := runner.Run(ctx, "ssh", args...)
	if err != nil {
		return stats, fmt.Errorf("list %s on %s: %w", remoteRoot, src.Name, err)
	}
	if err := os.MkdirAll(localRoot, 0o700); err != nil {
		return stats, fmt.Errorf("create mirror root: %w", err)
	}

	prefix := src.CachePrefix()
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		name, isDir := strings.CutSuffix(line, "/")
		if !isDir || name == "" || name == "." || name == ".." {
			continue
		}
		if pathcodec.IsCachedSourceDirectory(name) {
			stats.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rsyncArgs, err := ssh.BuildRsyncArgs(src.SSH, remoteRoot+"/"+name, filepath.Join(localRoot, prefix+name))
		if err != nil {
			return stats, err
		}
		if _, err := runner.Run(ctx, "rsync", rsyncArgs...); err != nil {
			stats.Failed++
			log.Warn("mirror fetch failed", "entry", name, "err", err)
			continue
		}
		stats.Fetched++
	}
	log.Debug("mirror synced", "fetched", stats.Fetched, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats, nil
}
