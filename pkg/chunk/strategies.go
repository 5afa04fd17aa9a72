package chunk

import (
	"strings"
	"unicode"

	"github.com/raywall/fast-doc-pipeline/pkg/extract"
)

const defaultSize = 200

// Fixed corta janelas de Size palavras com Overlap palavras repetidas
// entre janelas vizinhas.
type Fixed struct {
	Size    int
	Overlap int
}

func (Fixed) Name() string { return "fixed" }

func (f Fixed) Split(sections []extract.Section) []Chunk {
	size, overlap := f.Size, f.Overlap
	if size <= 0 {
		size = defaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	stride := size - overlap

	var out []Chunk
	for _, s := range sections {
		words := strings.Fields(s.Text)
		for i := 0; i < len(words); i += stride {
			end := min(i+size, len(words))
			out = append(out, newChunk(words[i:end], s))
			if end == len(words) {
				break
			}
		}
	}
	return renumber(out)
}

// Sentence agrupa frases inteiras até MaxWords palavras. Uma frase maior que
// o limite é cortada em janelas fixas.
type Sentence struct {
	MaxWords int
}

func (Sentence) Name() string { return "sentence" }

func (s Sentence) Split(sections []extract.Section) []Chunk {
	var out []Chunk
	for _, sec := range sections {
		out = append(out, s.splitSection(sec)...)
	}
	return renumber(out)
}

func (s Sentence) splitSection(sec extract.Section) []Chunk {
	limit := s.MaxWords
	if limit <= 0 {
		limit = defaultSize
	}

	var (
		out     []Chunk
		current []string
	)
	flush := func() {
		if len(current) > 0 {
			out = append(out, newChunk(current, sec))
			current = nil
		}
	}

	for _, sentence := range splitSentences(sec.Text) {
		words := strings.Fields(sentence)
		if len(words) > limit {
			flush()
			out = append(out, Fixed{Size: limit}.Split([]extract.Section{{
				Text: sentence, Page: sec.Page, Heading: sec.Heading,
			}})...)
			continue
		}
		if len(current)+len(words) > limit {
			flush()
		}
		current = append(current, words...)
	}
	flush()
	return out
}

// BySection gera um trecho por seção; seções acima de MaxWords são
// divididas por frases.
type BySection struct {
	MaxWords int
}

func (BySection) Name() string { return "section" }

func (b BySection) Split(sections []extract.Section) []Chunk {
	limit := b.MaxWords
	if limit <= 0 {
		limit = defaultSize
	}

	var out []Chunk
	for _, sec := range sections {
		words := strings.Fields(sec.Text)
		switch {
		case len(words) == 0:
			continue
		case len(words) <= limit:
			out = append(out, newChunk(words, sec))
		default:
			out = append(out, Sentence{MaxWords: limit}.splitSection(sec)...)
		}
	}
	return renumber(out)
}

// splitSentences corta em '.', '!' ou '?' seguidos de espaço ou fim do texto.
func splitSentences(text string) []string {
	var (
		sentences []string
		current   strings.Builder
	)
	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
