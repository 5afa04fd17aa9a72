package embed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/raywall/fast-doc-pipeline/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder devolve [len(texto), posição] para cada entrada.
type fakeEmbedder struct {
	dim      int
	calls    atomic.Int32
	mu       sync.Mutex
	received []string
	err      error
	vectors  func(texts []string) [][]float32
}

func (f *fakeEmbedder) Dimension() int { return f.dim }
func (f *fakeEmbedder) Model() string  { return "fake-model" }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.received = append(f.received, texts...)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.vectors != nil {
		return f.vectors(texts), nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(i)}
	}
	return out, nil
}

func TestBatch_PreservesOrder(t *testing.T) {
	f := &fakeEmbedder{dim: 2}
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	out, err := Batch(context.Background(), f, texts, 2, 3)
	require.NoError(t, err)
	require.Len(t, out, 5)

	for i, v := range out {
		assert.Equal(t, float32(len(texts[i])), v[0])
	}
	assert.Equal(t, int32(3), f.calls.Load())
}

func TestBatch_Errors(t *testing.T) {
	t.Run("embedder error", func(t *testing.T) {
		f := &fakeEmbedder{dim: 2, err: errors.New("rate limited")}
		_, err := Batch(context.Background(), f, []string{"a", "b"}, 1, 2)
		assert.ErrorContains(t, err, "rate limited")
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		f := &fakeEmbedder{dim: 3}
		_, err := Batch(context.Background(), f, []string{"a"}, 10, 1)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("wrong count", func(t *testing.T) {
		f := &fakeEmbedder{dim: 1, vectors: func([]string) [][]float32 { return [][]float32{{1}} }}
		_, err := Batch(context.Background(), f, []string{"a", "b"}, 10, 1)
		assert.ErrorContains(t, err, "got 1 vectors for 2 texts")
	})
}

func TestBatch_Empty(t *testing.T) {
	f := &fakeEmbedder{dim: 2}
	out, err := Batch(context.Background(), f, nil, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, f.calls.Load())
}

func TestNew(t *testing.T) {
	e, err := New(config.EmbeddingConf{Provider: "openai", Model: "m", Dimension: 4, Endpoint: "http://x/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "m", e.Model())
	assert.Equal(t, "http://x", e.(*OpenAI).endpoint)

	_, err = New(config.EmbeddingConf{Provider: "bedrock"}, nil)
	assert.ErrorContains(t, err, "bedrock client required")

	e, err = New(config.EmbeddingConf{Provider: "bedrock", Model: "amazon.titan-embed-text-v2:0", Dimension: 1024}, &MockBedrock{})
	require.NoError(t, err)
	assert.Equal(t, 1024, e.Dimension())

	_, err = New(config.EmbeddingConf{Provider: "cohere"}, nil)
	assert.True(t, strings.Contains(err.Error(), "unknown provider"))
}
