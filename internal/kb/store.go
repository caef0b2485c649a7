// Package kb manages the knowledge base: document ingestion, chunking and
// vector retrieval backed by an embedded chromem store.
package kb

import (
	"context"
	"fmt"
	"sort"

	"github.com/philippgille/chromem-go"

	"concierge/internal/logging"
)

// DefaultCollection holds general company knowledge. Topic-specific
// collections (faq, policies, services) sit alongside it.
const DefaultCollection = "company_kb"

// Result is one retrieved chunk with its relevance score in [0, 1].
type Result struct {
	ID       string
	Content  string
	Score    float64
	Source   string
	Category string
}

// Store wraps the vector database. All collections share one embedding
// function.
type Store struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc
	log   logging.Logger
}

// NewStore opens a persistent vector store at path.
func NewStore(path string, embed chromem.EmbeddingFunc) (*Store, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	return &Store{db: db, embed: embed, log: logging.NewComponentLogger("kb")}, nil
}

// NewMemoryStore creates an in-memory store, used in tests and for ephemeral
// deployments.
func NewMemoryStore(embed chromem.EmbeddingFunc) *Store {
	return &Store{db: chromem.NewDB(), embed: embed, log: logging.NewComponentLogger("kb")}
}

// AddDocument stores one chunk in the named collection.
func (s *Store) AddDocument(ctx context.Context, collection, id, content string, metadata map[string]string) error {
	c, err := s.db.GetOrCreateCollection(collection, nil, s.embed)
	if err != nil {
		return fmt.Errorf("get collection %s: %w", collection, err)
	}
	if err := c.AddDocument(ctx, chromem.Document{
		ID:       id,
		Content:  content,
		Metadata: metadata,
	}); err != nil {
		return fmt.Errorf("add document %s: %w", id, err)
	}
	return nil
}

// Count returns the number of chunks in a collection, 0 when absent.
func (s *Store) Count(collection string) int {
	c := s.db.GetCollection(collection, s.embed)
	if c == nil {
		return 0
	}
	return c.Count()
}

// Collections lists the collection names present in the store.
func (s *Store) Collections() []string {
	names := make([]string, 0)
	for name := range s.db.ListCollections() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// query runs a raw similarity query against one collection. nResults is
// clamped to the collection size since the store rejects overshoots.
func (s *Store) query(ctx context.Context, collection, text string, nResults int) ([]chromem.Result, error) {
	c := s.db.GetCollection(collection, s.embed)
	if c == nil {
		return nil, nil
	}
	count := c.Count()
	if count == 0 {
		return nil, nil
	}
	if nResults > count {
		nResults = count
	}
	results, err := c.Query(ctx, text, nResults, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return results, nil
}
