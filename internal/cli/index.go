package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/baaaaaaaka/agent_history/internal/backend"
	"github.com/baaaaaaaka/agent_history/internal/checkpoint"
	"github.com/baaaaaaaka/agent_history/internal/orchestrator"
)

func newIndexCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Maintain session indexes of backends that need one",
	}
	cmd.AddCommand(newIndexRefreshCmd(root), newIndexStatusCmd(root))
	return cmd
}

func newIndexRefreshCmd(root *rootOptions) *cobra.Command {
	opts := &listOptions{noCount: true}
	var force bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Bring session indexes up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			opts.forceIndex = force
			res, err := listSessions(cmd.Context(), a, opts, nil)
			if err != nil && !errors.Is(err, orchestrator.ErrNoSessions) && !errors.Is(err, orchestrator.ErrNoMatchOnSource) {
				return err
			}
			out := cmd.OutOrStdout()
			for _, rep := range res.Sources {
				if rep.Err != nil {
					_, _ = fmt.Fprintf(out, "%s: failed: %v\n", rep.Source, rep.Err)
					continue
				}
				_, _ = fmt.Fprintf(out, "%s: %d sessions\n", rep.Source, rep.Records)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&force, "force", false, "Re-extract every session file")
	f.StringArrayVar(&opts.sources, "source", nil, "Source to index; repeatable")
	f.BoolVarP(&opts.allSources, "all-sources", "a", false, "Index every discovered and configured source")
	f.StringSliceVar(&opts.backends, "backend", nil, "Restrict to these backends")
	f.BoolVar(&opts.fetch, "fetch", false, "Refresh remote mirrors first")
	return cmd
}

func newIndexStatusCmd(root *rootOptions) *cobra.Command {
	var allSources bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored index checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			var refs []string
			if !allSources {
				refs = []string{"local"}
			}
			sources, err := a.sources(cmd.Context(), refs)
			if err != nil {
				return err
			}
			t := &table{header: []string{"SOURCE", "BACKEND", "SESSIONS", "LAST SCAN", "FILE"}}
			for _, src := range sources {
				for _, b := range a.registry.All() {
					if b.Strategy() != backend.StrategyIndexed {
						continue
					}
					path := a.paths.Checkpoint(b.ID(), src.ID())
					if _, err := os.Stat(path); err != nil {
						t.add(src.ID(), b.ID(), "-", "never", path)
						continue
					}
					store, err := checkpoint.NewStore(path)
					if err != nil {
						return err
					}
					cp := store.Load()
					last := "never"
					if m, ok := cp.Marker(time.Local); ok {
						last = m.Format(dateLayout)
					}
					t.add(src.ID(), b.ID(), strconv.Itoa(len(cp.Sessions)), last, path)
				}
			}
			return t.write(cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&allSources, "all-sources", "a", false, "Include every discovered and configured source")
	return cmd
}
