// Package orchestrator lists sessions across several sources, merging and
// deduplicating their records.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/baaaaaaaka/agent_history/internal/aggregate"
	"github.com/baaaaaaaka/agent_history/internal/logger"
	"github.com/baaaaaaaka/agent_history/internal/session"
	"github.com/baaaaaaaka/agent_history/internal/source"
)

var (
	// ErrNoSessions means no source produced a matching session.
	ErrNoSessions = errors.New("no sessions found")
	// ErrNoMatchOnSource means a source queried in strict mode matched nothing.
	ErrNoMatchOnSource = errors.New("no matching sessions on source")
)

// Lister lists the sessions of one source.
type Lister interface {
	ListSessions(ctx context.Context, src source.Source, q aggregate.Query) ([]session.Record, error)
}

type Options struct {
	// Concurrency bounds the sources queried at once. Values below one mean one.
	Concurrency int
	// Timeout bounds each non-local source. Zero means no bound.
	Timeout time.Duration
	// Strict fails as soon as a source matches nothing.
	Strict bool
	// IncludeCached keeps records read from other sources' mirrors.
	IncludeCached bool
	// KeepDuplicates returns every source's copy of a session.
	KeepDuplicates bool
}

// SourceReport is the outcome of one source.
type SourceReport struct {
	Source  string
	Records int
	// Err is the soft failure that emptied this source, if any.
	Err error
}

type Result struct {
	Records    []session.Record
	Sources    []SourceReport
	Duplicates int
}

type Orchestrator struct {
	Lister Lister
	Log    *slog.Logger
}

func New(l Lister) *Orchestrator {
	return &Orchestrator{Lister: l}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return logger.WithComponent("orchestrator")
}

// ListAllSources queries every source and merges the results in source
// order, keeping the first copy of sessions reachable through several
// sources. A failing or slow source contributes nothing. The Result is
// filled in even when an error is returned.
func (o *Orchestrator) ListAllSources(ctx context.Context, sources []source.Source, q aggregate.Query, opts Options) (Result, error) {
	q.IncludeCached = q.IncludeCached || opts.IncludeCached
	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	batches := make([][]session.Record, len(sources))
	reports := make([]SourceReport, len(sources))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			recs, err := o.listOne(ctx, src, q, opts.Timeout)
			batches[i] = recs
			reports[i] = SourceReport{Source: src.ID(), Records: len(recs), Err: err}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Sources: reports}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	seen := map[session.Key]bool{}
	for _, batch := range batches {
		for _, rec := range batch {
			if rec.Cached && !q.IncludeCached {
				continue
			}
			if seen[rec.Key()] && !opts.KeepDuplicates {
				res.Duplicates++
				continue
			}
			seen[rec.Key()] = true
			res.Records = append(res.Records, rec)
		}
	}
	sort.SliceStable(res.Records, func(i, j int) bool {
		return res.Records[i].Modified.After(res.Records[j].Modified)
	})

	if opts.Strict {
		for _, rep := range reports {
			if rep.Records > 0 {
				continue
			}
			if rep.Err != nil {
				return res, fmt.Errorf("%w %s: %v", ErrNoMatchOnSource, rep.Source, rep.Err)
			}
			return res, fmt.Errorf("%w %s", ErrNoMatchOnSource, rep.Source)
		}
	}
	if len(res.Records) == 0 {
		return res, ErrNoSessions
	}
	return res, nil
}

type listResult struct {
	recs []session.Record
	err  error
}

// listOne runs one source. A bounded source is abandoned when its deadline
// passes even if the lister ignores cancellation.
func (o *Orchestrator) listOne(ctx context.Context, src source.Source, q aggregate.Query, timeout time.Duration) ([]session.Record, error) {
	log := o.logger().With("source", src.ID())
	if timeout > 0 && src.Kind != source.KindLocal && src.Kind != "" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	done := make(chan listResult, 1)
	go func() {
		recs, err := o.Lister.ListSessions(ctx, src, q)
		done <- listResult{recs: recs, err: err}
	}()

	var r listResult
	select {
	case r = <-done:
	case <-ctx.Done():
		r = listResult{err: ctx.Err()}
	}
	if r.err != nil {
		if errors.Is(r.err, context.DeadlineExceeded) {
			log.Warn("source timed out", "after", time.Since(started).Round(time.Millisecond))
		} else {
			log.Warn("source failed", "err", r.err)
		}
		return nil, r.err
	}
	log.Debug("source listed", "records", len(r.recs), "took", time.Since(started).Round(time.Millisecond))
	return r.recs, nil
}
