package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/baaaaaaaka/agent_history/internal/backend"
)

func newShowCmd(root *rootOptions) *cobra.Command {
	var backendID string
	var last int
	var maxChars int

	cmd := &cobra.Command{
		Use:   "show <session-file>",
		Short: "Print the messages of a session file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			reg := backend.DefaultRegistry()
			b, err := backendForFile(reg, backendID, path)
			if err != nil {
				return err
			}
			msgs, err := backend.ReadMessages(b, path, last)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			if len(msgs) == 0 {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No messages.")
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), backend.FormatMessages(msgs, maxChars))
			return nil
		},
	}
	cmd.Flags().StringVar(&backendID, "backend", "", "Backend of the file (default: inferred from its path)")
	cmd.Flags().IntVar(&last, "last", 0, "Only print the last N messages")
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "Truncate each message to N characters")
	return cmd
}

// backendForFile picks the backend named by id, or the one whose session
// tree contains path.
func backendForFile(reg *backend.Registry, id, path string) (backend.Backend, error) {
	if id != "" {
		b, ok := reg.Get(id)
		if !ok {
			return nil, fmt.Errorf("unknown backend %q (known: %s)", id, strings.Join(reg.IDs(), ", "))
		}
		return b, nil
	}
	slashed := filepath.ToSlash(path)
	for _, b := range reg.All() {
		marker := "/" + filepath.ToSlash(b.Root("")) + "/"
		if strings.Contains(slashed, marker) && b.IsSessionFile(filepath.Base(path)) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("cannot tell the backend of %s; pass --backend", path)
}
