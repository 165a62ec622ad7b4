package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docrag/internal/chunker"
	"docrag/internal/loader"
)

const previewWidth = 120

func newChunkCmd(root *rootOptions) *cobra.Command {
	var size, overlap int
	var full bool
	cmd := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Show how a file is split into chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(root, root.verbose)
			if err != nil {
				return err
			}
			window := chunkingFromConfig(cfg.Chunker)
			if cmd.Flags().Changed("size") {
				window.Size = size
			}
			if cmd.Flags().Changed("overlap") {
				window.Overlap = overlap
			}

			f, err := loader.New().Load(args[0])
			if err != nil {
				return err
			}
			chunks, err := chunker.Split(f.Text, window)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			headerColor.Fprintf(out, "%s: %d words, %d chunks (size=%d overlap=%d)\n",
				f.Name, len(strings.Fields(f.Text)), len(chunks), window.Size, window.Overlap)
			for i, c := range chunks {
				text := c
				if !full {
					text = truncate(c, previewWidth)
				}
				docColor.Fprintf(out, "[%d] ", i)
				fmt.Fprintf(out, "(%d words) %s\n", len(strings.Fields(c)), text)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "words per chunk (defaults to chunker.chunk_size)")
	cmd.Flags().IntVar(&overlap, "overlap", 0, "words shared by consecutive chunks (defaults to chunker.chunk_overlap)")
	cmd.Flags().BoolVar(&full, "full", false, "print whole chunks")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
