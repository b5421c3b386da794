package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/baaaaaaaka/agent_history/internal/backend"
	"github.com/baaaaaaaka/agent_history/internal/orchestrator"
	"github.com/baaaaaaaka/agent_history/internal/session"
	"github.com/baaaaaaaka/agent_history/internal/tui"
)

const (
	previewMessages = 20
	previewChars    = 2000
)

// browseSessions is replaced in tests.
var browseSessions = tui.Browse

func newBrowseCmd(root *rootOptions) *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:   "browse [pattern...]",
		Short: "Browse sessions in a terminal UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			cwd, _ := os.Getwd()
			sel, err := browseSessions(cmd.Context(), tui.Options{
				Load: func(ctx context.Context) ([]session.Record, error) {
					res, err := listSessions(ctx, a, opts, args)
					if errors.Is(err, orchestrator.ErrNoSessions) {
						return nil, nil
					}
					return res.Records, err
				},
				Preview: func(r session.Record) (string, error) {
					return previewRecord(a.registry, r)
				},
				Version:    version,
				DefaultCwd: cwd,
			})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			if sel == nil {
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), sel.Record.File)
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

func previewRecord(reg *backend.Registry, r session.Record) (string, error) {
	b, ok := reg.Get(r.Backend)
	if !ok {
		return "", fmt.Errorf("unknown backend %q", r.Backend)
	}
	msgs, err := backend.ReadMessages(b, r.File, previewMessages)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "(no messages)", nil
	}
	return backend.FormatMessages(msgs, previewChars), nil
}
