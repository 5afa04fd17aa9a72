// Package enrich implementa o terceiro estágio: identificadores, hash de
// conteúdo, metadados, contexto vizinho e palavras-chave por chunk.
package enrich

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/raywall/fast-doc-pipeline/pkg/chunk"
	"github.com/raywall/fast-doc-pipeline/pkg/config"
	"github.com/raywall/fast-doc-pipeline/pkg/rules"
)

// Document reúne os dados do documento que vão para os metadados.
type Document struct {
	ID        string
	Source    string
	FileName  string
	Title     string
	Format    string
	PageCount int
}

// Chunk é o chunk pronto para embedding e carga.
type Chunk struct {
	ID          string
	DocumentID  string
	Index       int
	Text        string
	ContentHash string
	Context     string
	Keywords    []string
	Metadata    map[string]string
}

type Enricher struct {
	cfg   config.EnrichmentConf
	rules *rules.RuleManager
}

// New cria o Enricher. rm pode ser nil quando não há filtro nem regras.
func New(cfg config.EnrichmentConf, rm *rules.RuleManager) (*Enricher, error) {
	if rm == nil && (cfg.Filter != "" || len(cfg.Metadata) > 0) {
		return nil, fmt.Errorf("enrich: rule manager required for filter and metadata rules")
	}
	if cfg.Filter != "" {
		if err := rm.Check(cfg.Filter); err != nil {
			return nil, fmt.Errorf("enrich: filter: %w", err)
		}
	}
	return &Enricher{cfg: cfg, rules: rm}, nil
}

func ChunkID(docID string, index int) string {
	return docID + "#" + strconv.Itoa(index)
}

func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Enrich filtra os chunks, renumera os que ficaram e monta o resultado.
func (e *Enricher) Enrich(doc Document, chunks []chunk.Chunk) ([]Chunk, error) {
	docVars := map[string]interface{}{
		"document_id": doc.ID,
		"source":      doc.Source,
		"file_name":   doc.FileName,
		"title":       doc.Title,
		"format":      doc.Format,
		"page_count":  doc.PageCount,
	}

	kept := make([]chunk.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if e.cfg.Filter == "" {
			kept = append(kept, c)
			continue
		}
		ok, err := e.rules.EvaluateBool(e.cfg.Filter, vars(c, docVars))
		if err != nil {
			return nil, fmt.Errorf("enrich: filter on chunk %d: %w", c.Index, err)
		}
		if ok {
			kept = append(kept, c)
		}
	}
	for i := range kept {
		kept[i].Index = i
	}

	out := make([]Chunk, 0, len(kept))
	for i, c := range kept {
		item := Chunk{
			ID:          ChunkID(doc.ID, c.Index),
			DocumentID:  doc.ID,
			Index:       c.Index,
			Text:        c.Text,
			ContentHash: ContentHash(c.Text),
			Context:     neighbours(kept, i, e.cfg.ContextWindow),
			Keywords:    Keywords(c.Text, e.cfg.Keywords),
		}
		item.Metadata = map[string]string{
			"document_id": doc.ID,
			"source":      doc.Source,
			"file_name":   doc.FileName,
			"title":       doc.Title,
			"chunk_index": strconv.Itoa(c.Index),
		}
		if c.Page > 0 {
			item.Metadata["page"] = strconv.Itoa(c.Page)
		}
		if c.Heading != "" {
			item.Metadata["heading"] = c.Heading
		}
		if len(item.Keywords) > 0 {
			item.Metadata["keywords"] = strings.Join(item.Keywords, ",")
		}

		for _, rule := range e.cfg.Metadata {
			res, err := e.rules.ExecuteTransformation(rule, vars(c, docVars))
			if err != nil {
				return nil, fmt.Errorf("enrich: chunk %d: %w", c.Index, err)
			}
			if res.Applied && res.Value != nil {
				item.Metadata[res.Target] = fmt.Sprint(res.Value)
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func vars(c chunk.Chunk, doc map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"chunk": map[string]interface{}{
			"index":      c.Index,
			"text":       c.Text,
			"word_count": c.WordCount,
			"page":       c.Page,
			"heading":    c.Heading,
		},
		"document": doc,
	}
}

// neighbours junta o texto dos chunks a até window posições de i.
func neighbours(chunks []chunk.Chunk, i, window int) string {
	if window <= 0 {
		return ""
	}
	var parts []string
	for j := max(0, i-window); j <= min(len(chunks)-1, i+window); j++ {
		if j != i {
			parts = append(parts, chunks[j].Text)
		}
	}
	return strings.Join(parts, "\n")
}
