package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/philippgille/chromem-go"
	"github.com/raywall/fast-doc-pipeline/pkg/config"
)

var errNoEmbeddingFunc = errors.New("chromem: records must carry their embeddings")

// Chromem grava em um banco chromem-go persistido em disco.
type Chromem struct {
	db          *chromem.DB
	collection  *chromem.Collection
	concurrency int
}

func OpenChromem(cfg config.ChromemConf) (*Chromem, error) {
	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("chromem: open %s: %w", cfg.Path, err)
	}
	return NewChromem(db, cfg.Collection, cfg.Concurrency)
}

// NewChromem usa um DB já aberto (chromem.NewDB() em memória nos testes).
func NewChromem(db *chromem.DB, collection string, concurrency int) (*Chromem, error) {
	// Os vetores vêm do estágio de embedding; a função só existe para o chromem
	noEmbed := func(context.Context, string) ([]float32, error) { return nil, errNoEmbeddingFunc }

	c, err := db.GetOrCreateCollection(collection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("chromem: collection %s: %w", collection, err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Chromem{db: db, collection: c, concurrency: concurrency}, nil
}

func (c *Chromem) Upsert(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		meta := make(map[string]string, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			meta[k] = v
		}
		meta["document_id"] = r.DocumentID

		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Content:   r.Text,
			Embedding: r.Vector,
			Metadata:  meta,
		})
	}

	if err := c.collection.AddDocuments(ctx, docs, c.concurrency); err != nil {
		return 0, fmt.Errorf("chromem: add documents: %w", err)
	}
	return len(docs), nil
}

func (c *Chromem) DeleteDocument(ctx context.Context, documentID string) error {
	if err := c.collection.Delete(ctx, map[string]string{"document_id": documentID}, nil); err != nil {
		return fmt.Errorf("chromem: delete %s: %w", documentID, err)
	}
	return nil
}

// Count devolve o número de documentos na coleção.
func (c *Chromem) Count() int { return c.collection.Count() }

// Query busca os n vetores mais próximos; usado pelas ferramentas de inspeção.
// Coleção vazia ou n <= 0 devolve uma lista vazia (o chromem rejeita nResults 0).
func (c *Chromem) Query(ctx context.Context, vector []float32, n int) ([]chromem.Result, error) {
	n = min(n, c.Count())
	if n <= 0 {
		return []chromem.Result{}, nil
	}
	return c.collection.QueryEmbedding(ctx, vector, n, nil, nil)
}

func (c *Chromem) Close() error { return nil }
