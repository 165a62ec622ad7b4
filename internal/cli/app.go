package cli

import (
	"context"
	"fmt"

	"docrag/internal/chunker"
	"docrag/internal/config"
	"docrag/internal/docstore"
	"docrag/internal/domain"
	"docrag/internal/embedding/gemini"
	"docrag/internal/embedding/hashing"
	"docrag/internal/embedding/openai"
	"docrag/internal/loader"
	"docrag/internal/logging"
	"docrag/internal/retrieval"
	"docrag/internal/service"
)

// setup loads the config and routes the log. Console logging is only enabled
// on request so that command output stays clean.
func setup(opts *rootOptions, console bool) (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if opts.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(opts.configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logPath := cfg.Logging.File
	if opts.logFile != "" {
		logPath = opts.logFile
	}
	if err := logging.Init(logPath, console); err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return cfg, nil
}

func chunkingFromConfig(cfg config.ChunkerConfig) chunker.Config {
	return chunker.Config{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}
}

// buildEmbedder selects the embedding provider named by cfg.Type.
func buildEmbedder(ctx context.Context, cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "hashing", "":
		dim := cfg.Dimension
		if dim <= 0 && cfg.Hashing != nil {
			dim = cfg.Hashing.Dimension
		}
		return hashing.NewEmbedder(dim), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:       cfg.OpenAI.BaseURL,
			APIKeyEnv:     cfg.OpenAI.APIKeyEnv,
			Model:         cfg.OpenAI.Model,
			Dimensions:    cfg.OpenAI.Dimensions,
			BatchSize:     cfg.OpenAI.BatchSize,
			Concurrency:   cfg.OpenAI.Concurrency,
			MaxRetries:    cfg.OpenAI.MaxRetries,
			Timeout:       cfg.Timeout(),
			AllowEmptyKey: cfg.OpenAI.AllowEmptyKey,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	case "gemini":
		if cfg.Gemini == nil {
			return nil, fmt.Errorf("gemini embedder config missing")
		}
		emb, err := gemini.NewEmbedder(ctx, gemini.Config{
			APIKeyEnv:  cfg.Gemini.APIKeyEnv,
			Model:      cfg.Gemini.Model,
			Dimensions: cfg.Gemini.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embedder init failed: %w", err)
		}
		return emb, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

// buildService assembles the embedder, the retrieval engine and the service.
func buildService(ctx context.Context, cfg *config.AppConfig) (*service.RAGService, error) {
	emb, err := buildEmbedder(ctx, cfg.Embedder)
	if err != nil {
		return nil, err
	}
	engine := retrieval.New(emb,
		retrieval.WithDimension(cfg.Embedder.Dimension),
		retrieval.WithChunking(chunkingFromConfig(cfg.Chunker)),
		retrieval.WithEmbedTimeout(cfg.Retrieval.EmbedTimeout()),
	)
	logging.LogEvent("embedder=%s dimension=%d chunk_size=%d chunk_overlap=%d",
		emb.Name(), emb.Dimension(), cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	return service.NewRAGService(engine, docstore.New(), loader.New()), nil
}
