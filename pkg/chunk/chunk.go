// Package chunk divide as seções extraídas em trechos de tamanho controlado
// (em palavras) para o embedding.
package chunk

import (
	"fmt"
	"strings"

	"github.com/raywall/fast-doc-pipeline/pkg/config"
	"github.com/raywall/fast-doc-pipeline/pkg/extract"
)

// Chunk é a unidade que segue para enriquecimento e embedding.
type Chunk struct {
	Index     int
	Text      string
	Page      int
	Heading   string
	WordCount int
}

type Strategy interface {
	Name() string
	Split(sections []extract.Section) []Chunk
}

// Chunker aplica a estratégia escolhida e depois compacta trechos pequenos.
type Chunker struct {
	strategy Strategy
	minSize  int
}

// New escolhe a estratégia a partir da configuração.
func New(cfg config.ChunkingConf) (*Chunker, error) {
	var s Strategy
	switch cfg.Strategy {
	case "fixed":
		s = Fixed{Size: cfg.Size, Overlap: cfg.Overlap}
	case "sentence", "":
		s = Sentence{MaxWords: cfg.Size}
	case "section":
		s = BySection{MaxWords: cfg.Size}
	default:
		return nil, fmt.Errorf("chunk: unknown strategy %q", cfg.Strategy)
	}
	return &Chunker{strategy: s, minSize: cfg.MinSize}, nil
}

func (c *Chunker) Strategy() string { return c.strategy.Name() }

func (c *Chunker) Chunk(sections []extract.Section) []Chunk {
	return Compress(c.strategy.Split(sections), c.minSize)
}

// Compress junta trechos consecutivos com menos de minWords palavras. Um
// trecho pequeno no fim é absorvido pelo anterior.
func Compress(chunks []Chunk, minWords int) []Chunk {
	if minWords <= 0 || len(chunks) < 2 {
		return renumber(chunks)
	}

	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if n := len(out); n > 0 && out[n-1].WordCount < minWords {
			out[n-1] = merge(out[n-1], c)
			continue
		}
		out = append(out, c)
	}
	if n := len(out); n > 1 && out[n-1].WordCount < minWords {
		out[n-2] = merge(out[n-2], out[n-1])
		out = out[:n-1]
	}
	return renumber(out)
}

func merge(a, b Chunk) Chunk {
	a.Text = a.Text + " " + b.Text
	a.WordCount += b.WordCount
	if a.Page == 0 {
		a.Page = b.Page
	}
	if a.Heading == "" {
		a.Heading = b.Heading
	}
	return a
}

func renumber(chunks []Chunk) []Chunk {
	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}

func newChunk(words []string, s extract.Section) Chunk {
	return Chunk{
		Text:      strings.Join(words, " "),
		Page:      s.Page,
		Heading:   s.Heading,
		WordCount: len(words),
	}
}
