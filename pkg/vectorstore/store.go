// Package vectorstore implementa o quinto estágio: gravação dos vetores em
// pgvector, chromem-go ou Pinecone.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/raywall/fast-doc-pipeline/pkg/config"
)

// Record é um chunk com seu vetor, pronto para gravar.
type Record struct {
	ID         string
	DocumentID string
	Text       string
	Vector     []float32
	Metadata   map[string]string
}

type Store interface {
	// Upsert grava os registros e devolve quantos foram escritos.
	Upsert(ctx context.Context, records []Record) (int, error)
	// DeleteDocument remove todos os vetores de um documento.
	DeleteDocument(ctx context.Context, documentID string) error
	Close() error
}

// Open cria o store do provider configurado.
func Open(ctx context.Context, cfg config.VectorStoreConf, dimension int) (Store, error) {
	switch cfg.Provider {
	case "pgvector":
		return OpenPGVector(ctx, cfg.PGVector, dimension)
	case "chromem":
		return OpenChromem(cfg.Chromem)
	case "pinecone":
		return NewPinecone(cfg.Pinecone), nil
	default:
		return nil, fmt.Errorf("vectorstore: unknown provider %q", cfg.Provider)
	}
}
