// Package catalog holds chunk metadata addressed by the same flat ordinals as the vector index.
package catalog

import (
	"errors"
	"fmt"
	"sync"

	"docrag/internal/domain"
)

// Catalog is an append-only ordered list of chunks shared by all documents.
type Catalog struct {
	mu     sync.RWMutex
	chunks []domain.Chunk
}

func New() *Catalog { return &Catalog{} }

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chunks)
}

// Append adds entries at the end. Invalid entries reject the whole batch.
func (c *Catalog) Append(chunks []domain.Chunk) error {
	for i, ch := range chunks {
		if ch.DocumentID == "" {
			return fmt.Errorf("catalog entry %d: empty document id", i)
		}
		if ch.Index < 0 {
			return fmt.Errorf("catalog entry %d: negative chunk index %d", i, ch.Index)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, chunks...)
	return nil
}

// Get returns the chunk stored at ordinal.
func (c *Catalog) Get(ordinal int) (domain.Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if ordinal < 0 || ordinal >= len(c.chunks) {
		return domain.Chunk{}, fmt.Errorf("%w: %d (len %d)", domain.ErrOrdinalOutOfRange, ordinal, len(c.chunks))
	}
	return c.chunks[ordinal], nil
}

// Truncate drops every entry at ordinal n or later.
func (c *Catalog) Truncate(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 || n > len(c.chunks) {
		return fmt.Errorf("%w: truncate to %d (len %d)", domain.ErrOrdinalOutOfRange, n, len(c.chunks))
	}
	clear(c.chunks[n:])
	c.chunks = c.chunks[:n]
	return nil
}

// Reset clears the catalog.
func (c *Catalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = nil
}

// DocumentIDs lists distinct document ids in first-seen order.
func (c *Catalog) DocumentIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{})
	var ids []string
	for _, ch := range c.chunks {
		if _, ok := seen[ch.DocumentID]; ok {
			continue
		}
		seen[ch.DocumentID] = struct{}{}
		ids = append(ids, ch.DocumentID)
	}
	return ids
}

// IsOutOfRange reports whether err came from a lookup past the end of the catalog.
func IsOutOfRange(err error) bool { return errors.Is(err, domain.ErrOrdinalOutOfRange) }
