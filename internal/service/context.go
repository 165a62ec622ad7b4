package service

import (
	"fmt"
	"strings"

	"docrag/internal/domain"
)

// Source identifies a retrieved chunk in answers.
type Source struct {
	DocID   string  `json:"doc_id"`
	ChunkID int     `json:"chunk_id"`
	Score   float64 `json:"score"`
}

func Sources(results []domain.SearchResult) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		out = append(out, Source{DocID: r.Chunk.DocumentID, ChunkID: r.Chunk.Index, Score: r.Score})
	}
	return out
}

// FormatContext renders results as numbered Source[i] blocks for an answer model.
func FormatContext(results []domain.SearchResult) string {
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		blocks = append(blocks, fmt.Sprintf("Source[%d]:\n%s", i, r.Chunk.Text))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

const answerInstructions = "You are an assistant that answers questions strictly using the provided documents. " +
	"If the answer is not present in the documents, say you don't know. " +
	"Provide concise, accurate answers and cite which document chunk you used."

// BuildPrompt wraps the retrieved context and the question into a single prompt.
func BuildPrompt(question string, results []domain.SearchResult) string {
	var b strings.Builder
	b.WriteString(answerInstructions)
	b.WriteString("\n\nContext retrieved from documents:\n")
	b.WriteString(FormatContext(results))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer the question using only the above context. ")
	b.WriteString("If it's not present, say 'Answer not available in the provided documents.' ")
	b.WriteString("Keep answer succinct and reference Source[index].")
	return b.String()
}
