package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/baaaaaaaka/agent_history/internal/aggregate"
	"github.com/baaaaaaaka/agent_history/internal/orchestrator"
	"github.com/baaaaaaaka/agent_history/internal/session"
)

const dateLayout = "2006-01-02"

type listOptions struct {
	sources       []string
	allSources    bool
	since         string
	until         string
	noCount       bool
	includeCached bool
	concurrency   int
	timeout       time.Duration
	backends      []string
	fetch         bool
	forceIndex    bool

	keepDuplicates bool
}

func (o *listOptions) bind(cmd *cobra.Command) {
	o.bindSources(cmd)
	f := cmd.Flags()
	f.StringVar(&o.since, "since", "", "Only sessions modified on or after this date (YYYY-MM-DD)")
	f.StringVar(&o.until, "until", "", "Only sessions modified on or before this date (YYYY-MM-DD)")
	f.BoolVar(&o.noCount, "no-count", false, "Skip counting messages")
	f.BoolVar(&o.includeCached, "include-cached", false, "Also list directories mirrored from other sources")
	f.StringSliceVar(&o.backends, "backend", nil, "Restrict to these backends (claude, codex, gemini)")
	f.BoolVar(&o.forceIndex, "force-index", false, "Rebuild session indexes from scratch")
}

// bindSources binds the flags choosing and reaching sources, without any
// filter narrowing what each source lists.
func (o *listOptions) bindSources(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringArrayVar(&o.sources, "source", nil, "Source to list (local, wsl:<distro>, windows:<user>, remote:<host>); repeatable")
	f.BoolVarP(&o.allSources, "all-sources", "a", false, "List every discovered and configured source")
	f.IntVar(&o.concurrency, "concurrency", 0, "Sources queried at once (default from config, 1)")
	f.DurationVar(&o.timeout, "timeout", 0, "Per-source timeout for non-local sources (default from config)")
	f.BoolVar(&o.fetch, "fetch", false, "Refresh remote mirrors before listing")
}

func (o *listOptions) query(patterns []string) (aggregate.Query, error) {
	since, err := parseDate("since", o.since)
	if err != nil {
		return aggregate.Query{}, err
	}
	until, err := parseDate("until", o.until)
	if err != nil {
		return aggregate.Query{}, err
	}
	if !since.IsZero() && !until.IsZero() && until.Before(since) {
		return aggregate.Query{}, fmt.Errorf("--until %s is before --since %s", o.until, o.since)
	}
	return aggregate.Query{
		Patterns:      patterns,
		Since:         since,
		Until:         until,
		SkipCount:     o.noCount,
		IncludeCached: o.includeCached,
		Backends:      o.backends,
		Fetch:         o.fetch,
		ForceIndex:    o.forceIndex,
	}, nil
}

func parseDate(name, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: want YYYY-MM-DD, got %q", name, v)
	}
	return t, nil
}

func newListCmd(root *rootOptions) *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list [pattern...]",
		Short: "List sessions whose workspace matches the patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, root, opts, args)
		},
	}
	opts.bind(cmd)
	return cmd
}

// listSessions runs one orchestrated listing. A single explicit source is
// strict; every other selection is lenient.
func listSessions(ctx context.Context, a *app, opts *listOptions, patterns []string) (orchestrator.Result, error) {
	q, err := opts.query(patterns)
	if err != nil {
		return orchestrator.Result{}, err
	}
	if cwd, err := os.Getwd(); err == nil {
		a.learnHashes(cwd)
	}

	refs := opts.sources
	if len(refs) == 0 && !opts.allSources {
		refs = []string{"local"}
	}
	if opts.allSources {
		refs = nil
	}
	sources, err := a.sources(ctx, refs)
	if err != nil {
		return orchestrator.Result{}, err
	}

	concurrency := opts.concurrency
	if concurrency <= 0 {
		concurrency = a.settings.Concurrency
	}
	timeout := opts.timeout
	if timeout <= 0 {
		timeout = a.settings.Timeout()
	}
	return a.orch.ListAllSources(ctx, sources, q, orchestrator.Options{
		Concurrency:    concurrency,
		Timeout:        timeout,
		Strict:         len(sources) == 1 && !opts.allSources,
		IncludeCached:  opts.includeCached || a.settings.IncludeCached,
		KeepDuplicates: opts.keepDuplicates,
	})
}

func runList(cmd *cobra.Command, root *rootOptions, opts *listOptions, patterns []string) error {
	a, err := newApp(root)
	if err != nil {
		return err
	}
	res, err := listSessions(cmd.Context(), a, opts, patterns)
	if err != nil && !errors.Is(err, orchestrator.ErrNoSessions) {
		return err
	}

	if errors.Is(err, orchestrator.ErrNoSessions) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No sessions found.")
		return nil
	}

	t := &table{header: []string{"MODIFIED", "BACKEND", "SOURCE", "MSGS", "WORKSPACE", "FILE"}}
	for _, r := range res.Records {
		t.add(formatTime(r.Modified), r.Backend, r.Source, formatCount(r), workspaceLabel(r), r.File)
	}
	return t.write(cmd.OutOrStdout())
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatCount(r session.Record) string {
	if !r.CountKnown() {
		return "-"
	}
	return strconv.Itoa(r.MessageCount)
}

func workspaceLabel(r session.Record) string {
	if r.WorkspacePath != "" {
		return r.WorkspacePath
	}
	return r.Workspace
}

func newWorkspacesCmd(root *rootOptions) *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:   "workspaces [pattern...]",
		Short: "Summarize sessions per workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			res, err := listSessions(cmd.Context(), a, opts, args)
			if err != nil && !errors.Is(err, orchestrator.ErrNoSessions) {
				return err
			}
			sums := summarize(res.Records)
			t := &table{header: []string{"LAST ACTIVE", "BACKEND", "SESSIONS", "MSGS", "WORKSPACE"}}
			for _, s := range sums {
				msgs := "-"
				if s.Messages >= 0 {
					msgs = strconv.Itoa(s.Messages)
				}
				t.add(formatTime(s.LastModified), s.Backend, strconv.Itoa(s.Sessions), msgs, s.label())
			}
			return t.write(cmd.OutOrStdout())
		},
	}
	opts.bind(cmd)
	return cmd
}

type workspaceSummary struct {
	Backend       string
	Workspace     string
	WorkspacePath string
	Sessions      int
	Messages      int
	LastModified  time.Time
}

func (s workspaceSummary) label() string {
	if s.WorkspacePath != "" {
		return s.WorkspacePath
	}
	return s.Workspace
}

// summarize groups records by backend and workspace in listing order, so the
// most recently active workspace comes first. Messages is -1 when no record
// of the workspace was counted.
func summarize(records []session.Record) []workspaceSummary {
	var out []workspaceSummary
	index := map[session.Key]int{}
	for _, r := range records {
		k := session.Key{Backend: r.Backend, Workspace: r.Workspace}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, workspaceSummary{Backend: r.Backend, Workspace: r.Workspace, Messages: -1})
		}
		s := &out[i]
		s.Sessions++
		if s.WorkspacePath == "" {
			s.WorkspacePath = r.WorkspacePath
		}
		if r.Modified.After(s.LastModified) {
			s.LastModified = r.Modified
		}
		if r.CountKnown() {
			s.Messages = max(s.Messages, 0) + r.MessageCount
		}
	}
	return out
}
