package cli

import (
	"os"

	"github.com/spf13/cobra"

	"docrag/internal/logging"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logFile    string
	verbose    bool
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "docrag",
		Short:        "Chunk, embed and search local documents",
		SilenceUsage: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.Close()
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (defaults to ./config.yaml or ~/.config/docrag/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "append logs to this file (overrides logging.file)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(newQueryCmd(opts))
	root.AddCommand(newTUICmd(opts))
	root.AddCommand(newChunkCmd(opts))
	return root
}
