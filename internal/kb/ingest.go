package kb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Ingestor loads knowledge base documents from disk into the store.
type Ingestor struct {
	store   *Store
	chunker *Chunker
}

// NewIngestor creates an ingestor over store using chunker.
func NewIngestor(store *Store, chunker *Chunker) *Ingestor {
	return &Ingestor{store: store, chunker: chunker}
}

// IngestDir walks dir and ingests every .md and .txt file. A first-level
// subdirectory names the collection; files at the top level go to the
// default collection. Returns the number of chunks stored.
func (i *Ingestor) IngestDir(ctx context.Context, dir string) (int, error) {
	total := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		collection := DefaultCollection
		if parts := strings.Split(filepath.ToSlash(rel), "/"); len(parts) > 1 {
			collection = parts[0]
		}

		n, err := i.IngestFile(ctx, collection, path)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", rel, err)
		}
		total += n
		return nil
	})
	if err != nil {
		return total, err
	}
	i.store.log.Info("ingested %d chunks from %s", total, dir)
	return total, nil
}

// IngestFile chunks one document into collection. The category is derived
// from the file name.
func (i *Ingestor) IngestFile(ctx context.Context, collection, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	base := filepath.Base(path)
	category := strings.TrimSuffix(base, filepath.Ext(base))
	chunks := i.chunker.Chunk(string(data))
	for n, chunk := range chunks {
		id := fmt.Sprintf("%s:%s:%d", collection, category, n)
		metadata := map[string]string{
			"source":   base,
			"category": category,
		}
		if err := i.store.AddDocument(ctx, collection, id, chunk, metadata); err != nil {
			return n, err
		}
	}
	return len(chunks), nil
}
