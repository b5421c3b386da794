package checkpoint

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/baaaaaaaka/agent_history/internal/logger"
)

// Extractor reads the workspace identifier of one session file.
type Extractor func(path string) (string, error)

// Indexer brings a Checkpoint up to date with a session tree.
type Indexer struct {
	Partitioner Partitioner
	// Match selects session files by base name. Nil accepts every file.
	Match   func(name string) bool
	Extract Extractor
	// Top scopes the scan to some top-level entries of the root.
	Top TopFilter

	Now      func() time.Time
	Location *time.Location
	Log      *slog.Logger
}

// Options tune a refresh.
type Options struct {
	// Force ignores the scan marker and re-extracts every file.
	Force bool
	// Rescan lists every partition but keeps indexed files. Trees copied in
	// with their original mtimes, such as fetched mirrors, need it.
	Rescan bool
}

// Stats summarizes one refresh.
type Stats struct {
	Pruned     int
	Partitions int
	Added      int
	Skipped    int
}

// Refresh updates the checkpoint held by store with the session tree at root
// and saves it. The store's file lock is held for the whole refresh.
func (ix Indexer) Refresh(ctx context.Context, store *Store, root string, opts Options) (*Checkpoint, Stats, error) {
	var (
		result *Checkpoint
		stats  Stats
	)
	err := store.Update(func(cp *Checkpoint) error {
		s, err := ix.Scan(ctx, cp, root, opts)
		if err != nil {
			return err
		}
		result, stats = cp, s
		return nil
	})
	if err != nil {
		return nil, stats, err
	}
	return result, stats, nil
}

// Scan applies one refresh to cp in memory: entries whose files vanished are
// pruned, partitions on or after the marker day are listed, files not yet
// indexed are extracted and the marker advances to the scan day. Files that
// cannot be read are skipped and retried by the next scan that reaches their
// partition.
func (ix Indexer) Scan(ctx context.Context, cp *Checkpoint, root string, opts Options) (Stats, error) {
	var stats Stats
	if cp.Sessions == nil {
		cp.Sessions = map[string]string{}
	}
	loc := ix.Location
	if loc == nil {
		loc = time.Local
	}
	now := time.Now
	if ix.Now != nil {
		now = ix.Now
	}
	log := ix.Log
	if log == nil {
		log = logger.WithComponent("checkpoint")
	}
	started := now().In(loc)
	scanDay := time.Date(started.Year(), started.Month(), started.Day(), 0, 0, 0, 0, loc)

	if opts.Force {
		cp.Sessions = map[string]string{}
		cp.LastScanMarker = ""
	} else {
		stats.Pruned = prune(cp)
	}

	since, _ := cp.Marker(loc)
	if opts.Rescan {
		since = time.Time{}
	}
	parts, err := ix.Partitioner.Partitions(root, ix.Top, since, loc)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cp.setMarker(scanDay)
			return stats, nil
		}
		return stats, err
	}
	stats.Partitions = len(parts)

	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		for _, path := range ix.sessionFiles(part.Dir) {
			if _, ok := cp.Sessions[path]; ok {
				continue
			}
			workspace, err := ix.Extract(path)
			if err != nil {
				stats.Skipped++
				log.Debug("skipping unreadable session file", "path", path, "err", err)
				continue
			}
			cp.Sessions[path] = workspace
			stats.Added++
		}
	}

	cp.setMarker(scanDay)
	return stats, nil
}

func (ix Indexer) sessionFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ix.Match != nil && !ix.Match(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out
}

func prune(cp *Checkpoint) int {
	removed := 0
	for path := range cp.Sessions {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			delete(cp.Sessions, path)
			removed++
		}
	}
	return removed
}
