package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"docrag/internal/chunker"
	"docrag/internal/docstore"
	"docrag/internal/domain"
	"docrag/internal/loader"
	"docrag/internal/logging"
	"docrag/internal/retrieval"
)

// TextFieldSource is the source recorded for text that did not come from a file.
const TextFieldSource = "text_field"

// ErrEmptyDocument is returned for text without any non-whitespace content.
var ErrEmptyDocument = errors.New("document is empty")

// Engine is the retrieval surface the service drives.
type Engine interface {
	IndexDocument(ctx context.Context, docID, text string, cfg chunker.Config) (int, error)
	ChunkingConfig() chunker.Config
	Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error)
	RebuildFrom(ctx context.Context, docs []domain.Document) error
	CheckConsistency() error
	Stats() retrieval.Stats
}

// Stats describes the service's contents.
type Stats struct {
	Documents int
	Vectors   int
	Chunks    int
	Dimension int
}

// IngestedFile reports what happened to one file passed to IngestFiles.
type IngestedFile struct {
	Path   string
	DocID  string
	Chunks int
	// Skipped is set for files without usable text; Reason says why.
	Skipped bool
	Reason  string
}

// RAGService keeps documents and their retrieval index together.
type RAGService struct {
	// mu makes "index then record" and "snapshot then rebuild" atomic with respect
	// to each other, so a rebuild never misses a document that ends up stored.
	mu     sync.Mutex
	engine Engine
	docs   *docstore.Store
	loader *loader.Loader
}

func NewRAGService(engine Engine, docs *docstore.Store, ld *loader.Loader) *RAGService {
	if docs == nil {
		docs = docstore.New()
	}
	if ld == nil {
		ld = loader.New()
	}
	return &RAGService{engine: engine, docs: docs, loader: ld}
}

// IngestText indexes text as a new document. The document is only recorded once
// the engine has accepted it, so the store never holds unsearchable text.
func (s *RAGService) IngestText(ctx context.Context, text, source string) (domain.Document, error) {
	doc, _, err := s.ingest(ctx, text, source)
	return doc, err
}

func (s *RAGService) ingest(ctx context.Context, text, source string) (domain.Document, int, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Document{}, 0, ErrEmptyDocument
	}
	if source == "" {
		source = TextFieldSource
	}
	doc := docstore.NewDocument(text, source)

	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.engine.IndexDocument(ctx, doc.ID, doc.Text, s.engine.ChunkingConfig())
	if err != nil {
		logging.LogEvent("ingest %s failed: %v", source, err)
		return domain.Document{}, 0, fmt.Errorf("ingest %s: %w", source, err)
	}
	if err := s.docs.Put(doc); err != nil {
		return domain.Document{}, 0, err
	}
	logging.LogIngest(doc.ID, source, n, time.Since(start))
	return doc, n, nil
}

// IngestFiles expands glob patterns and ingests every readable file. Files
// without text are reported as skipped; an engine failure stops the run and
// returns what was ingested so far.
func (s *RAGService) IngestFiles(ctx context.Context, patterns []string) ([]IngestedFile, error) {
	paths, err := s.loader.Expand(patterns)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.New("no files given")
	}

	out := make([]IngestedFile, 0, len(paths))
	for _, p := range paths {
		f, err := s.loader.Load(p)
		if err != nil {
			if errors.Is(err, loader.ErrUnsupported) {
				logging.LogEvent("skip %s: %v", p, err)
				out = append(out, IngestedFile{Path: p, Skipped: true, Reason: err.Error()})
				continue
			}
			return out, err
		}
		if strings.TrimSpace(f.Text) == "" {
			out = append(out, IngestedFile{Path: p, Skipped: true, Reason: "no text"})
			continue
		}
		doc, n, err := s.ingest(ctx, f.Text, f.Name)
		if err != nil {
			return out, err
		}
		out = append(out, IngestedFile{Path: p, DocID: doc.ID, Chunks: n})
	}
	return out, nil
}

// Query returns the chunks most similar to question.
func (s *RAGService) Query(ctx context.Context, question string, topK int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("question is empty")
	}
	start := time.Now()
	res, err := s.engine.Search(ctx, question, topK)
	if err != nil {
		logging.LogEvent("query failed: %v", err)
		return nil, err
	}
	logging.LogQuery(question, topK, len(res), time.Since(start))
	return res, nil
}

// Rebuild re-indexes every stored document in ingestion order.
func (s *RAGService) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.docs.All()
	start := time.Now()
	if err := s.engine.RebuildFrom(ctx, docs); err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	logging.LogEvent("rebuilt index from %d documents in %s", len(docs), time.Since(start).Round(time.Millisecond))
	return nil
}

// Verify checks that the index and the catalog still line up and rebuilds
// them from the stored documents when they do not.
func (s *RAGService) Verify(ctx context.Context) (bool, error) {
	err := s.engine.CheckConsistency()
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, domain.ErrIndexCatalogDesync) {
		return false, err
	}
	logging.LogEvent("%v, rebuilding", err)
	if err := s.Rebuild(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RAGService) Stats() Stats {
	st := s.engine.Stats()
	return Stats{
		Documents: s.docs.Len(),
		Vectors:   st.Vectors,
		Chunks:    st.Chunks,
		Dimension: st.Dimension,
	}
}

// Document returns a stored document.
func (s *RAGService) Document(id string) (domain.Document, error) {
	return s.docs.Get(id)
}
