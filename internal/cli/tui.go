package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docrag/internal/tui"
)

func newTUICmd(root *rootOptions) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "tui <file>...",
		Short: "Index files and search them interactively",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// the terminal belongs to the UI, logs only go to the file
			cfg, err := setup(root, false)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := buildService(ctx, cfg)
			if err != nil {
				return err
			}
			if err := ingest(ctx, svc, args, nil, cmd.ErrOrStderr()); err != nil {
				return err
			}
			if topK <= 0 {
				topK = cfg.Retrieval.TopK
			}
			_, err = tea.NewProgram(tui.New(svc, topK), tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "results per query (defaults to retrieval.top_k)")
	return cmd
}
