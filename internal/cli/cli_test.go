package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/config"
	"docrag/internal/service"
)

func init() {
	color.NoColor = true
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestQueryCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "chunker:\n  chunk_size: 6\n  chunk_overlap: 1\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.txt"),
		[]byte("goroutines are lightweight threads managed by the go runtime scheduler"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tea.md"),
		[]byte("green tea is brewed at lower temperatures than black tea"), 0o644))
	logPath := filepath.Join(dir, "docrag.log")

	out, errOut, err := run(t, "query", "--config", cfgPath, "--log-file", logPath,
		"-f", filepath.Join(dir, "*.txt"), "-f", filepath.Join(dir, "*.md"),
		"-k", "1", "green", "tea", "brewed")
	require.NoError(t, err)
	assert.Contains(t, errOut, "indexed "+filepath.Join(dir, "go.txt"))
	assert.Contains(t, errOut, "2 documents")
	assert.Contains(t, out, "#1 doc=")
	assert.Contains(t, out, "green tea is brewed")
	assert.Equal(t, 1, strings.Count(out, "score="))

	logData, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "[QUERY]")
	assert.Contains(t, string(logData), "embedder=hashing")
}

func TestQueryCommand_ContextAndJSON(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), "retrieval:\n  top_k: 2\n")

	out, _, err := run(t, "query", "-c", cfgPath, "--context",
		"-t", "alpha beta gamma", "-t", "delta epsilon", "alpha")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Source[0]:\nalpha beta gamma"))
	assert.Contains(t, out, "\n\n---\n\nSource[1]:\ndelta epsilon")

	out, _, err = run(t, "query", "-c", cfgPath, "--json", "-t", "alpha beta gamma", "alpha")
	require.NoError(t, err)
	var sources []service.Source
	require.NoError(t, json.Unmarshal([]byte(out), &sources))
	require.Len(t, sources, 1)
	assert.Equal(t, 0, sources[0].ChunkID)

	_, _, err = run(t, "query", "-c", cfgPath, "--json", "--context", "-t", "x", "x")
	assert.Error(t, err)
}

func TestQueryCommand_NeedsInput(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), "")
	_, _, err := run(t, "query", "-c", cfgPath, "anything")
	assert.ErrorContains(t, err, "nothing to search")
}

func TestChunkCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "")
	file := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(file, []byte("a b c d e f g h i j"), 0o644))

	out, _, err := run(t, "chunk", "-c", cfgPath, "--size", "4", "--overlap", "1", file)
	require.NoError(t, err)
	assert.Contains(t, out, "doc.txt: 10 words, 3 chunks (size=4 overlap=1)")
	assert.Contains(t, out, "[0] (4 words) a b c d")
	assert.Contains(t, out, "[1] (4 words) d e f g")
	assert.Contains(t, out, "[2] (4 words) g h i j")

	_, _, err = run(t, "chunk", "-c", cfgPath, "--size", "4", "--overlap", "4", file)
	assert.Error(t, err)
}

func TestBuildEmbedder(t *testing.T) {
	ctx := context.Background()

	emb, err := buildEmbedder(ctx, config.EmbedderConfig{Type: "hashing", Hashing: &config.HashingEmbedderConfig{Dimension: 32}})
	require.NoError(t, err)
	assert.Equal(t, "hashing", emb.Name())
	assert.Equal(t, 32, emb.Dimension())

	emb, err = buildEmbedder(ctx, config.EmbedderConfig{Type: "hashing", Dimension: 16, Hashing: &config.HashingEmbedderConfig{Dimension: 32}})
	require.NoError(t, err)
	assert.Equal(t, 16, emb.Dimension())

	emb, err = buildEmbedder(ctx, config.EmbedderConfig{Type: "openai", OpenAI: &config.OpenAIEmbedderConfig{
		BaseURL: "http://localhost:11434/v1", Model: "nomic-embed-text", AllowEmptyKey: true,
	}})
	require.NoError(t, err)
	assert.Equal(t, "openai", emb.Name())

	_, err = buildEmbedder(ctx, config.EmbedderConfig{Type: "openai"})
	assert.Error(t, err)
	_, err = buildEmbedder(ctx, config.EmbedderConfig{Type: "bert"})
	assert.ErrorContains(t, err, "unknown embedder")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab…", truncate("abc", 2))
}
