package chunker

import (
	"fmt"
	"strings"

	"docrag/internal/domain"
)

const (
	// DefaultChunkSize is the window length in whitespace tokens.
	DefaultChunkSize = 500
	// DefaultChunkOverlap is the number of tokens shared by consecutive windows.
	DefaultChunkOverlap = 50
)

// Config controls the word-window split.
type Config struct {
	Size    int
	Overlap int
}

// DefaultConfig returns the 500/50 window used when callers do not choose one.
func DefaultConfig() Config {
	return Config{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap}
}

// Validate rejects configurations whose window start would not advance.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidChunkingConfig, c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", domain.ErrInvalidChunkingConfig, c.Overlap)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", domain.ErrInvalidChunkingConfig, c.Overlap, c.Size)
	}
	return nil
}

// Stride is the number of tokens the window start advances per step.
func (c Config) Stride() int { return c.Size - c.Overlap }

// Split cuts text into windows of cfg.Size whitespace tokens joined by single spaces.
// Consecutive windows share cfg.Overlap tokens and the pass stops once a window
// reaches the last token, so the final window may be shorter than cfg.Size.
func Split(text string, cfg Config) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}
	step := cfg.Stride()
	var out []string
	for i := 0; i < len(words); i += step {
		end := i + cfg.Size
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return out, nil
}

// Chunks splits a document and tags every window with its document id and position.
func Chunks(doc domain.Document, cfg Config) ([]domain.Chunk, error) {
	texts, err := Split(doc.Text, cfg)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = domain.Chunk{DocumentID: doc.ID, Index: i, Text: t}
	}
	return chunks, nil
}
