// Package docstore keeps the raw text of ingested documents for the lifetime of a service.
package docstore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"docrag/internal/domain"
)

// ErrNotFound is returned when a document id is unknown.
var ErrNotFound = errors.New("document not found")

// Store maps document ids to documents and remembers insertion order.
type Store struct {
	mu    sync.RWMutex
	order []string
	docs  map[string]domain.Document
}

func New() *Store {
	return &Store{docs: make(map[string]domain.Document)}
}

// NewDocument builds a document with a fresh random id.
func NewDocument(text, source string) domain.Document {
	return domain.Document{ID: uuid.NewString(), Source: source, Text: text}
}

// Put stores doc. Ids are unique.
func (s *Store) Put(doc domain.Document) error {
	if doc.ID == "" {
		return errors.New("document id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return fmt.Errorf("document %s already stored", doc.ID)
	}
	s.docs[doc.ID] = doc
	s.order = append(s.order, doc.ID)
	return nil
}

// Get returns the document with the given id.
func (s *Store) Get(id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, nil
}

// All returns every document in insertion order.
func (s *Store) All() []domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Document, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id])
	}
	return out
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
