// Package embed implementa o quarto estágio: geração de embeddings via
// OpenAI ou Bedrock, com cache opcional em Redis.
package embed

import (
	"context"
	"errors"
	"fmt"

	"github.com/raywall/fast-doc-pipeline/pkg/config"
	"golang.org/x/sync/errgroup"
)

var ErrDimensionMismatch = errors.New("embed: dimension mismatch")

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}

// New cria o embedder do provider configurado. bedrock só é usado pelo
// provider "bedrock".
func New(cfg config.EmbeddingConf, bedrock BedrockClient) (Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	case "bedrock":
		if bedrock == nil {
			return nil, fmt.Errorf("embed: bedrock client required")
		}
		return NewBedrock(bedrock, cfg.Model, cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("embed: unknown provider %q", cfg.Provider)
	}
}

// Batch divide os textos em lotes de batchSize e processa até concurrency
// lotes em paralelo. A ordem de saída é a mesma da entrada.
func Batch(ctx context.Context, e Embedder, texts []string, batchSize, concurrency int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for start := 0; start < len(texts); start += batchSize {
		start, end := start, min(start+batchSize, len(texts))
		g.Go(func() error {
			vectors, err := e.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed: batch %d-%d: %w", start, end, err)
			}
			if len(vectors) != end-start {
				return fmt.Errorf("embed: batch %d-%d: got %d vectors for %d texts", start, end, len(vectors), end-start)
			}
			for i, v := range vectors {
				if dim := e.Dimension(); dim > 0 && len(v) != dim {
					return fmt.Errorf("%w: text %d has %d, expected %d", ErrDimensionMismatch, start+i, len(v), dim)
				}
				out[start+i] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
