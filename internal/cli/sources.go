package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/baaaaaaaka/agent_history/internal/config"
	"github.com/baaaaaaaka/agent_history/internal/source"
	"github.com/baaaaaaaka/agent_history/internal/ssh"
)

func newSourcesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List and configure the sources sessions are read from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			srcs, err := a.sources(cmd.Context(), nil)
			if err != nil {
				return err
			}
			t := &table{header: []string{"SOURCE", "KIND", "HOME"}}
			for _, s := range srcs {
				home := s.Home
				if s.Mirrored() {
					home = s.SSH.Destination() + " (mirrored under " + s.Home + ")"
				}
				t.add(s.ID(), string(s.Kind), home)
			}
			return t.write(cmd.OutOrStdout())
		},
	}
	cmd.AddCommand(newSourcesAddCmd(root), newSourcesRemoveCmd(root), newSourcesCheckCmd(root))
	return cmd
}

func newSourcesAddCmd(root *rootOptions) *cobra.Command {
	var entry config.SourceSettings
	var noProbe bool

	cmd := &cobra.Command{
		Use:   "add <kind:name>",
		Short: "Add or update a configured source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := source.Parse(args[0])
			if err != nil {
				return err
			}
			if parsed.Kind == source.KindLocal {
				return fmt.Errorf("the local source is always listed")
			}
			entry.Kind = string(parsed.Kind)
			entry.Name = parsed.Name

			paths, err := root.paths()
			if err != nil {
				return err
			}
			settings, err := config.LoadSettings(paths.Settings())
			if err != nil {
				return err
			}
			home, err := root.homeDir()
			if err != nil {
				return err
			}
			src, err := source.FromSettings(entry, home)
			if err != nil {
				return err
			}
			if src.Mirrored() && !noProbe {
				if err := ssh.Probe(cmd.Context(), commandRunner, src.SSH); err != nil {
					return fmt.Errorf("ssh probe of %s failed (use --no-probe to save anyway): %w", src.SSH.Destination(), err)
				}
			}

			settings.UpsertSource(entry)
			if err := config.SaveSettings(paths.Settings(), settings); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved source %s\n", src.ID())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&entry.Home, "home", "", "Home directory of a wsl or windows source")
	f.StringVar(&entry.User, "user", "", "SSH user of a remote source")
	f.IntVar(&entry.Port, "port", 0, "SSH port of a remote source")
	f.StringArrayVar(&entry.SSHArgs, "ssh-arg", nil, "Extra ssh argument; repeatable")
	f.BoolVar(&noProbe, "no-probe", false, "Save a remote source without checking the ssh login")
	return cmd
}

func newSourcesRemoveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <source>",
		Short: "Remove a configured source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := root.paths()
			if err != nil {
				return err
			}
			settings, err := config.LoadSettings(paths.Settings())
			if err != nil {
				return err
			}
			entry, ok := settings.FindSource(args[0])
			if !ok || !settings.RemoveSource(entry.ID()) {
				return fmt.Errorf("source %q is not configured", args[0])
			}
			if err := config.SaveSettings(paths.Settings(), settings); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed source %s\n", entry.ID())
			return nil
		},
	}
}

func newSourcesCheckCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [source...]",
		Short: "Check that remote sources accept a non-interactive ssh login",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			srcs, err := a.sources(cmd.Context(), args)
			if err != nil {
				return err
			}
			var failed []string
			for _, s := range srcs {
				if !s.Mirrored() {
					continue
				}
				if err := ssh.Probe(cmd.Context(), commandRunner, s.SSH); err != nil {
					failed = append(failed, s.ID())
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", s.ID(), err)
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", s.ID())
			}
			if len(failed) > 0 {
				return fmt.Errorf("unreachable: %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
}
