package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"docrag/internal/embedding"
)

const (
	embedBatchSize  = 50
	embedBatchDelay = 700 * time.Millisecond
	embedRetryDelay = 6 * time.Second
	embedMaxRetries = 5
)

// Config configures the Gemini embedder.
type Config struct {
	APIKeyEnv  string
	APIKey     string
	Model      string
	Dimensions int
}

// Embedder implements domain.Embedder using Google's Gemini API.
type Embedder struct {
	client *genai.Client
	model  string
	outDim int

	mu        sync.Mutex
	dimension int
}

// NewEmbedder creates a Gemini embedder. The key comes from cfg.APIKey, then
// cfg.APIKeyEnv, then GEMINI_API_KEY and GOOGLE_API_KEY.
func NewEmbedder(ctx context.Context, cfg Config) (*Embedder, error) {
	key := cfg.APIKey
	for _, env := range []string{cfg.APIKeyEnv, "GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		if key != "" {
			break
		}
		if env != "" {
			key = os.Getenv(env)
		}
	}
	if key == "" {
		return nil, errors.New("missing Gemini API key (set GEMINI_API_KEY or GOOGLE_API_KEY)")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Embedder{
		client:    client,
		model:     cfg.Model,
		outDim:    cfg.Dimensions,
		dimension: cfg.Dimensions,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (g *Embedder) Name() string { return "gemini" }

// Dimension returns the vector size, learned from the first response unless configured.
func (g *Embedder) Dimension() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dimension
}

// Embed returns unit vectors for texts, in input order.
func (g *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var config *genai.EmbedContentConfig
	if g.outDim > 0 {
		dim := int32(g.outDim)
		config = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	results := make([][]float32, 0, len(texts))
	for i, batch := range embedding.Batches(texts, embedBatchSize) {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(embedBatchDelay):
			}
		}

		contents := make([]*genai.Content, 0, len(batch))
		for _, text := range batch {
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}

		var res *genai.EmbedContentResponse
		var err error
		for attempt := 0; attempt <= embedMaxRetries; attempt++ {
			res, err = g.client.Models.EmbedContent(ctx, g.model, contents, config)
			if err == nil {
				break
			}
			if !isRateLimitError(err) || attempt == embedMaxRetries {
				return nil, fmt.Errorf("failed to embed text: %w", err)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(embedRetryDelay):
			}
		}

		if len(res.Embeddings) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(res.Embeddings), len(batch))
		}
		for _, emb := range res.Embeddings {
			v := make([]float32, len(emb.Values))
			copy(v, emb.Values)
			results = append(results, v)
		}
	}
	embedding.NormalizeAll(results)

	g.mu.Lock()
	if g.dimension == 0 && len(results) > 0 {
		g.dimension = len(results[0])
	}
	g.mu.Unlock()
	return results, nil
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "429") || strings.Contains(s, "RESOURCE_EXHAUSTED") || strings.Contains(s, "quota")
}
