package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/raywall/fast-doc-pipeline/pkg/config"
)

const pineconeBatch = 100

// Pinecone grava via API REST do índice ({host}/vectors/...).
type Pinecone struct {
	host      string
	apiKey    string
	namespace string
	client    *http.Client
}

func NewPinecone(cfg config.PineconeConf) *Pinecone {
	return &Pinecone{
		host:      strings.TrimRight(cfg.Host, "/"),
		apiKey:    cfg.APIKey,
		namespace: cfg.Namespace,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

type pineconeVector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type pineconeUpsert struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type pineconeDelete struct {
	Filter    map[string]interface{} `json:"filter"`
	Namespace string                 `json:"namespace,omitempty"`
}

func (p *Pinecone) Upsert(ctx context.Context, records []Record) (int, error) {
	written := 0
	for start := 0; start < len(records); start += pineconeBatch {
		batch := records[start:min(start+pineconeBatch, len(records))]

		req := pineconeUpsert{Namespace: p.namespace, Vectors: make([]pineconeVector, 0, len(batch))}
		for _, r := range batch {
			meta := make(map[string]string, len(r.Metadata)+2)
			for k, v := range r.Metadata {
				meta[k] = v
			}
			meta["document_id"] = r.DocumentID
			meta["text"] = r.Text
			req.Vectors = append(req.Vectors, pineconeVector{ID: r.ID, Values: r.Vector, Metadata: meta})
		}

		var resp struct {
			UpsertedCount int `json:"upsertedCount"`
		}
		if err := p.post(ctx, "/vectors/upsert", req, &resp); err != nil {
			return written, err
		}
		written += resp.UpsertedCount
	}
	return written, nil
}

func (p *Pinecone) DeleteDocument(ctx context.Context, documentID string) error {
	return p.post(ctx, "/vectors/delete", pineconeDelete{
		Filter:    map[string]interface{}{"document_id": map[string]string{"$eq": documentID}},
		Namespace: p.namespace,
	}, nil)
}

func (p *Pinecone) Close() error { return nil }

func (p *Pinecone) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pinecone: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pinecone: %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pinecone: %s: decode response: %w", path, err)
	}
	return nil
}
