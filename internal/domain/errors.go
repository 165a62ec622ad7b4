package domain

import "errors"

var (
	// ErrEmbeddingUnavailable wraps failures and timeouts of the embedding provider.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrDimensionMismatch reports embedding output that does not fit the index shape.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInvalidChunkingConfig reports a non-positive chunk size or an overlap that stalls the window.
	ErrInvalidChunkingConfig = errors.New("invalid chunking config")
	// ErrIndexCatalogDesync means the vector index and the chunk catalog no longer line up.
	// Recovery requires a rebuild.
	ErrIndexCatalogDesync = errors.New("index and catalog out of sync")
	// ErrEmptyDocumentID is returned when a document is indexed without an id.
	ErrEmptyDocumentID = errors.New("document id is empty")
	// ErrInvalidVector reports an embedding that is all zeros or has NaN/Inf components.
	ErrInvalidVector = errors.New("invalid embedding vector")
	// ErrOrdinalOutOfRange is returned for lookups past the end of a store.
	ErrOrdinalOutOfRange = errors.New("ordinal out of range")
)
