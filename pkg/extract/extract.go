// Package extract implementa o primeiro estágio do pipeline: converter o
// arquivo de origem em seções de texto.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupportedFormat = errors.New("extract: unsupported format")
	ErrNoText            = errors.New("extract: no text content found")
)

// Section é um trecho contíguo do documento.
type Section struct {
	Text    string
	Page    int    // 1-based; 0 quando o formato não tem páginas
	Heading string // título da seção mais próxima
	Kind    string // page, section, paragraph
}

type Extraction struct {
	Title     string
	Format    string
	PageCount int
	Sections  []Section
}

// WordCount soma as palavras de todas as seções.
func (e *Extraction) WordCount() int {
	n := 0
	for _, s := range e.Sections {
		n += len(strings.Fields(s.Text))
	}
	return n
}

// Extractor extrai texto de um arquivo local.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Extraction, error)
}

// ExtractorFunc adapta uma função ao Extractor.
type ExtractorFunc func(ctx context.Context, path string) (*Extraction, error)

func (f ExtractorFunc) Extract(ctx context.Context, path string) (*Extraction, error) {
	return f(ctx, path)
}

// Registry escolhe o extractor pela extensão do arquivo.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry registra os formatos suportados: pdf, markdown e texto.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	r.Register(".pdf", ExtractorFunc(extractPDF))
	r.Register(".md", ExtractorFunc(extractMarkdown))
	r.Register(".markdown", ExtractorFunc(extractMarkdown))
	r.Register(".txt", ExtractorFunc(extractText))
	return r
}

func (r *Registry) Register(ext string, e Extractor) {
	r.byExt[strings.ToLower(ext)] = e
}

// Supports informa se a extensão do caminho tem extractor.
func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (r *Registry) Extract(ctx context.Context, path string) (*Extraction, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := e.Extract(ctx, path)
	if err != nil {
		return nil, err
	}

	// Seções vazias não seguem adiante
	kept := out.Sections[:0]
	for _, s := range out.Sections {
		if strings.TrimSpace(s.Text) != "" {
			kept = append(kept, s)
		}
	}
	out.Sections = kept
	if len(out.Sections) == 0 {
		return nil, ErrNoText
	}
	if out.Format == "" {
		out.Format = strings.TrimPrefix(ext, ".")
	}
	return out, nil
}

func firstLine(text string, max int) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > max {
			line = string(r[:max])
		}
		return line
	}
	return ""
}
