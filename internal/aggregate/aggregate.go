// Package aggregate lists the sessions of one source across every backend,
// producing uniform records filtered by workspace pattern and date.
package aggregate

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/baaaaaaaka/agent_history/internal/backend"
	"github.com/baaaaaaaka/agent_history/internal/checkpoint"
	"github.com/baaaaaaaka/agent_history/internal/config"
	"github.com/baaaaaaaka/agent_history/internal/logger"
	"github.com/baaaaaaaka/agent_history/internal/pathcodec"
	"github.com/baaaaaaaka/agent_history/internal/resolver"
	"github.com/baaaaaaaka/agent_history/internal/session"
	"github.com/baaaaaaaka/agent_history/internal/source"
)

// Query selects sessions. Zero values select everything.
type Query struct {
	Patterns []string
	// Since and Until bound the modification date, inclusive.
	Since time.Time
	Until time.Time
	// SkipCount leaves MessageCount unknown.
	SkipCount bool
	// IncludeCached also lists directories mirrored from other sources.
	IncludeCached bool
	// Backends restricts the listing to these backend IDs.
	Backends []string
	// Fetch refreshes remote mirrors before listing.
	Fetch bool
	// ForceIndex rebuilds checkpoints from scratch.
	ForceIndex bool
}

// Fetcher refreshes the local mirror of a backend tree for a mirrored source.
type Fetcher interface {
	Fetch(ctx context.Context, src source.Source, b backend.Backend) error
}

type Aggregator struct {
	Registry *backend.Registry
	// Hashes decodes hash-scheme workspaces.
	Hashes pathcodec.HashLookup
	// Paths locates checkpoint files. When Paths.Root is empty checkpoints
	// are built in memory for every call.
	Paths  config.Paths
	Counts *backend.CountCache
	Mirror Fetcher
	// AnyExisting makes directory probes accept any existing path.
	AnyExisting bool
	Log         *slog.Logger
}

func (a *Aggregator) logger() *slog.Logger {
	if a.Log != nil {
		return a.Log
	}
	return logger.WithComponent("aggregate")
}

// ListSessions returns the sessions of src matching q, newest first.
// Unreadable roots and files contribute nothing; only cancellation of ctx is
// returned as an error.
func (a *Aggregator) ListSessions(ctx context.Context, src source.Source, q Query) ([]session.Record, error) {
	reg := a.Registry
	if reg == nil {
		reg = backend.DefaultRegistry()
	}
	codec := pathcodec.Codec{
		Resolver: resolver.Resolver{
			Prober:      resolver.OSProber{},
			Cache:       resolver.NewCache(),
			AnyExisting: a.AnyExisting || src.LenientProbing(),
		},
		Hashes: a.Hashes,
	}

	var out []session.Record
	for _, b := range reg.All() {
		if !wantBackend(q.Backends, b.ID()) {
			continue
		}
		recs, err := a.listBackend(ctx, codec, src, b, q)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	sortRecords(out)
	return out, nil
}

func wantBackend(ids []string, id string) bool {
	if len(ids) == 0 {
		return true
	}
	for _, want := range ids {
		if strings.EqualFold(strings.TrimSpace(want), id) {
			return true
		}
	}
	return false
}

func (a *Aggregator) listBackend(ctx context.Context, codec pathcodec.Codec, src source.Source, b backend.Backend, q Query) ([]session.Record, error) {
	log := a.logger().With("source", src.ID(), "backend", b.ID())
	if src.Home == "" {
		log.Debug("source has no home directory")
		return nil, nil
	}
	root := b.Root(src.Home)

	opts := checkpoint.Options{Force: q.ForceIndex}
	if q.Fetch && src.Mirrored() && a.Mirror != nil {
		if err := a.Mirror.Fetch(ctx, src, b); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("mirror fetch failed, listing stale copy", "err", err)
		} else {
			// Fetched partitions keep their remote dates and may predate the marker.
			opts.Rescan = true
		}
	}

	entries, err := a.entries(ctx, src, b, root, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Debug("backend root not readable", "path", root, "err", err)
		return nil, nil
	}

	decoded := map[string]pathcodec.Decoded{}
	var out []session.Record
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, top, ok := relativeToRoot(root, e.File)
		if !ok {
			continue
		}
		cached := !src.Mirrored() && pathcodec.IsCachedSourceDirectory(top)
		if cached && !q.IncludeCached {
			continue
		}
		if src.Mirrored() {
			rel = strings.TrimPrefix(rel, src.CachePrefix())
		} else if _, _, inner, ok := pathcodec.ParseCachedSourceDirectory(top); ok {
			rel = inner + strings.TrimPrefix(rel, top)
		}

		id := b.Identify(e.Identifier)
		dec, ok := decoded[e.Identifier]
		if !ok {
			dec = a.decode(codec, src, b, id)
			decoded[e.Identifier] = dec
		}
		if !MatchWorkspace(q.Patterns, id.Encoded, dec.Path) {
			continue
		}

		st, err := os.Stat(e.File)
		if err != nil {
			log.Debug("session file vanished", "path", e.File, "err", err)
			continue
		}
		if !InDateRange(st.ModTime(), q.Since, q.Until) {
			continue
		}

		rec := session.Record{
			Backend:       b.ID(),
			Workspace:     id.Encoded,
			WorkspacePath: dec.Path,
			Confidence:    dec.Confidence,
			File:          e.File,
			RelPath:       filepath.ToSlash(rel),
			Size:          st.Size(),
			Modified:      st.ModTime(),
			MessageCount:  session.UnknownCount,
			Source:        src.ID(),
			Cached:        cached,
		}
		if !q.SkipCount {
			n, err := a.Counts.Count(b, e.File)
			if err != nil {
				log.Debug("counting messages failed", "path", e.File, "err", err)
			} else {
				rec.MessageCount = n
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// entries enumerates session files, through the checkpointed index for
// indexed backends.
func (a *Aggregator) entries(ctx context.Context, src source.Source, b backend.Backend, root string, opts checkpoint.Options) ([]backend.Entry, error) {
	if b.Strategy() == backend.StrategyDirect {
		return b.Enumerate(ctx, root, src.Top())
	}
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	ix := checkpoint.Indexer{
		Partitioner: b.Partitioner(),
		Match:       b.IsSessionFile,
		Extract: func(path string) (string, error) {
			meta, err := b.ExtractIdentifier(path)
			return meta.Identifier, err
		},
		Top: src.Top(),
		Log: a.logger().With("source", src.ID(), "backend", b.ID()),
	}
	var cp *checkpoint.Checkpoint
	if a.Paths.Root == "" {
		cp = checkpoint.New()
		if _, err := ix.Scan(ctx, cp, root, opts); err != nil {
			return nil, err
		}
	} else {
		store, err := checkpoint.NewStore(a.Paths.Checkpoint(b.ID(), src.ID()))
		if err != nil {
			return nil, err
		}
		cp, _, err = ix.Refresh(ctx, store, root, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger().Warn("checkpoint refresh failed, using stored index", "path", store.Path(), "err", err)
			cp = store.Load()
		}
	}

	out := make([]backend.Entry, 0, len(cp.Sessions))
	for file, identifier := range cp.Sessions {
		if identifier == "" {
			continue
		}
		out = append(out, backend.Entry{Identifier: identifier, File: file})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}

func (a *Aggregator) decode(codec pathcodec.Codec, src source.Source, b backend.Backend, id backend.Identity) pathcodec.Decoded {
	if id.Path != "" {
		dec := pathcodec.Decoded{Path: id.Path, Confidence: pathcodec.ConfidenceComputed}
		if base := src.DecodeBase(id.Encoded); base != "" {
			if verifyPath(codec.Resolver, base, id.Path) {
				dec.Confidence = pathcodec.ConfidenceVerified
			}
		}
		return dec
	}
	return codec.Decode(id.Encoded, b.Scheme(), src.DecodeBase(id.Encoded))
}

// verifyPath checks a recorded workspace path below base.
func verifyPath(r resolver.Resolver, base, p string) bool {
	rest := p
	if pathcodec.IsWindowsPath(p) {
		if len(p) < 2 {
			return false
		}
		rest = p[2:]
	}
	rest = strings.Trim(strings.ReplaceAll(rest, `\`, "/"), "/")
	if rest == "" {
		return true
	}
	res := r.Resolve(base, []string{filepath.FromSlash(rest)})
	return res.Verified
}

// relativeToRoot returns file relative to root and the top-level entry it
// lives under.
func relativeToRoot(root, file string) (rel, top string, ok bool) {
	rel, err := filepath.Rel(root, file)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", "", false
	}
	top, _, _ = strings.Cut(filepath.ToSlash(rel), "/")
	return rel, top, true
}

func sortRecords(recs []session.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].Modified.Equal(recs[j].Modified) {
			return recs[i].Modified.After(recs[j].Modified)
		}
		if recs[i].Backend != recs[j].Backend {
			return recs[i].Backend < recs[j].Backend
		}
		return recs[i].File < recs[j].File
	})
}

var errNoMirror = errors.New("no mirror configured")

// SSHFetcher adapts source.SSHMirror to Fetcher.
type SSHFetcher struct {
	Mirror source.SSHMirror
}

func (f SSHFetcher) Fetch(ctx context.Context, src source.Source, b backend.Backend) error {
	if !src.Mirrored() {
		return errNoMirror
	}
	remoteRoot := filepath.ToSlash(b.Root(""))
	_, err := f.Mirror.Sync(ctx, src, remoteRoot, b.Root(src.Home))
	return err
}
