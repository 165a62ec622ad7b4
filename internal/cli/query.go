package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docrag/internal/domain"
	"docrag/internal/service"
)

var (
	headerColor = color.New(color.Bold)
	docColor    = color.New(color.FgCyan)
	scoreColor  = color.New(color.FgGreen)
	skipColor   = color.New(color.FgYellow)
)

type queryOptions struct {
	files   []string
	texts   []string
	topK    int
	context bool
	prompt  bool
	json    bool
}

func newQueryCmd(root *rootOptions) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query [flags] <question>",
		Short: "Index files and print the chunks most similar to a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question is required")
			}
			if len(opts.files) == 0 && len(opts.texts) == 0 {
				return fmt.Errorf("nothing to search: pass --file or --text")
			}
			cfg, err := setup(root, root.verbose)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := buildService(ctx, cfg)
			if err != nil {
				return err
			}
			if err := ingest(ctx, svc, opts.files, opts.texts, cmd.ErrOrStderr()); err != nil {
				return err
			}

			topK := opts.topK
			if topK <= 0 {
				topK = cfg.Retrieval.TopK
			}
			results, err := svc.Query(ctx, question, topK)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case opts.json:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(service.Sources(results))
			case opts.prompt:
				_, err = fmt.Fprintln(out, service.BuildPrompt(question, results))
				return err
			case opts.context:
				_, err = fmt.Fprintln(out, service.FormatContext(results))
				return err
			default:
				printResults(out, results)
				return nil
			}
		},
	}

	cmd.Flags().StringArrayVarP(&opts.files, "file", "f", nil, "file or glob pattern to index (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.texts, "text", "t", nil, "inline text to index as a document (repeatable)")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "number of results (defaults to retrieval.top_k)")
	cmd.Flags().BoolVar(&opts.context, "context", false, "print the retrieved context block instead of a result list")
	cmd.Flags().BoolVar(&opts.prompt, "prompt", false, "print a full answer prompt built from the retrieved context")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print sources as JSON")
	cmd.MarkFlagsMutuallyExclusive("context", "prompt", "json")
	return cmd
}

// ingest indexes files and inline texts, reporting progress to w.
func ingest(ctx context.Context, svc *service.RAGService, patterns, texts []string, w io.Writer) error {
	if len(patterns) > 0 {
		files, err := svc.IngestFiles(ctx, patterns)
		for _, f := range files {
			if f.Skipped {
				skipColor.Fprintf(w, "skipped %s: %s\n", f.Path, f.Reason)
				continue
			}
			fmt.Fprintf(w, "indexed %s (%d chunks)\n", f.Path, f.Chunks)
		}
		if err != nil {
			return err
		}
	}
	for i, text := range texts {
		doc, err := svc.IngestText(ctx, text, "")
		if err != nil {
			return fmt.Errorf("text %d: %w", i, err)
		}
		fmt.Fprintf(w, "indexed text %d as %s\n", i, doc.ID)
	}
	st := svc.Stats()
	fmt.Fprintf(w, "%d documents, %d chunks\n", st.Documents, st.Chunks)
	return nil
}

func printResults(w io.Writer, results []domain.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "no results")
		return
	}
	for i, r := range results {
		headerColor.Fprintf(w, "#%d ", i+1)
		docColor.Fprintf(w, "doc=%s chunk=%d ", r.Chunk.DocumentID, r.Chunk.Index)
		scoreColor.Fprintf(w, "score=%.4f\n", r.Score)
		fmt.Fprintln(w, r.Chunk.Text)
		if i < len(results)-1 {
			fmt.Fprintln(w)
		}
	}
}
