package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/baaaaaaaka/agent_history/internal/orchestrator"
	"github.com/baaaaaaaka/agent_history/internal/stats"
)

func newStatsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Maintain the session statistics database",
	}
	cmd.AddCommand(newStatsSyncCmd(root))
	return cmd
}

func newStatsSyncCmd(root *rootOptions) *cobra.Command {
	// Every copy of every session is synced; deduplication and filters would
	// read as vanished rows.
	opts := &listOptions{keepDuplicates: true}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Record the current sessions in the statistics database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			res, err := listSessions(cmd.Context(), a, opts, nil)
			if err != nil && !errors.Is(err, orchestrator.ErrNoSessions) && !errors.Is(err, orchestrator.ErrNoMatchOnSource) {
				return err
			}

			// Sources that failed keep their previous rows.
			var synced []string
			for _, rep := range res.Sources {
				if rep.Err == nil {
					synced = append(synced, rep.Source)
				}
			}

			db, err := stats.Open(a.paths.StatsDB())
			if err != nil {
				return err
			}
			defer db.Close()
			sum, err := db.Sync(cmd.Context(), synced, res.Records)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added %d, updated %d, removed %d, unchanged %d\n",
				sum.Added, sum.Updated, sum.Removed, sum.Unchanged)
			return nil
		},
	}
	opts.bindSources(cmd)
	return cmd
}
