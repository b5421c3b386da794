package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/baaaaaaaka/agent_history/internal/hashindex"
)

func newHashCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Manage the workspace hash index",
	}
	cmd.AddCommand(
		newHashListCmd(root),
		newHashRegisterCmd(root),
		newHashForgetCmd(root),
		newHashLearnCmd(root),
	)
	return cmd
}

func openHashIndex(root *rootOptions) (*hashindex.Index, error) {
	paths, err := root.paths()
	if err != nil {
		return nil, err
	}
	return hashindex.Open(paths.HashIndex())
}

func newHashListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List learned hashes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			idx, err := openHashIndex(root)
			if err != nil {
				return err
			}
			t := &table{header: []string{"HASH", "PATH"}}
			for _, e := range idx.Entries() {
				t.add(e.Hash, e.Path)
			}
			return t.write(cmd.OutOrStdout())
		},
	}
}

func newHashRegisterCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "register <path>",
		Short: "Remember the hash of a workspace path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			idx, err := openHashIndex(root)
			if err != nil {
				return err
			}
			hash, err := idx.Register(path)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", hash, path)
			return nil
		},
	}
}

func newHashForgetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <hash>",
		Short: "Drop a learned hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := openHashIndex(root)
			if err != nil {
				return err
			}
			removed, err := idx.Forget(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("hash %q is not in the index", args[0])
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", args[0])
			return nil
		},
	}
}

func newHashLearnCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "learn [path]",
		Short: "Learn a workspace path if a backend already has sessions for it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			path, err := os.Getwd()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				if path, err = filepath.Abs(args[0]); err != nil {
					return err
				}
			}
			if a.learnHashes(path) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Learned %s\n", path)
			} else {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Nothing new for %s\n", path)
			}
			return nil
		},
	}
}
