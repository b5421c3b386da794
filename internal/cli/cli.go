package cli

import (
	"github.com/spf13/cobra"

	"github.com/baaaaaaaka/agent_history/internal/logger"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

type rootOptions struct {
	configDir string
	home      string
	debug     bool
	logFile   bool
}

func Execute() int {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "agent-history",
		Short:         "List and browse assistant sessions across machines",
		SilenceErrors: false,
		SilenceUsage:  true,
		Version:       buildVersion(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger.SetDebug(opts.debug)
			if !opts.logFile {
				return nil
			}
			paths, err := opts.paths()
			if err != nil {
				return err
			}
			return logger.Init(paths.Log())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Without a subcommand behave like `agent-history list`.
			return runList(cmd, opts, &listOptions{}, args)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configDir, "config", "", "Override config directory (default: OS user config dir)")
	cmd.PersistentFlags().StringVar(&opts.home, "home", "", "Override the local home directory (default: $HOME)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Log debug output")
	cmd.PersistentFlags().BoolVar(&opts.logFile, "log-file", false, "Write logs to the config directory instead of stderr")

	cmd.AddCommand(
		newListCmd(opts),
		newWorkspacesCmd(opts),
		newShowCmd(opts),
		newBrowseCmd(opts),
		newIndexCmd(opts),
		newHashCmd(opts),
		newSourcesCmd(opts),
		newStatsCmd(opts),
	)

	return cmd
}

func buildVersion() string {
	v := version
	if commit != "" {
		v += " (" + commit + ")"
	}
	if date != "" {
		v += " " + date
	}
	return v
}
