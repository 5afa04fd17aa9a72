package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/raywall/fast-doc-pipeline/pkg/chunk"
	"github.com/raywall/fast-doc-pipeline/pkg/embed"
	"github.com/raywall/fast-doc-pipeline/pkg/enrich"
	"github.com/raywall/fast-doc-pipeline/pkg/extract"
	"github.com/raywall/fast-doc-pipeline/pkg/metrics"
	"github.com/raywall/fast-doc-pipeline/pkg/vectorstore"
)

const (
	StageExtract = "extract"
	StageChunk   = "chunk"
	StageEnrich  = "enrich"
	StageEmbed   = "embed"
	StageLoad    = "load"
)

var ErrNoChunks = errors.New("pipeline: document produced no chunks")

type Downloader interface {
	Download(ctx context.Context, bucket, key, dest string) (int64, error)
}

type Extractor interface {
	Extract(ctx context.Context, path string) (*extract.Extraction, error)
}

type Chunker interface {
	Chunk(sections []extract.Section) []chunk.Chunk
}

type Enricher interface {
	Enrich(doc enrich.Document, chunks []chunk.Chunk) ([]enrich.Chunk, error)
}

// Deps são as dependências dos cinco estágios.
type Deps struct {
	Downloader       Downloader
	Extractor        Extractor
	Chunker          Chunker
	Enricher         Enricher
	Embedder         embed.Embedder
	EmbedBatchSize   int
	EmbedConcurrency int
	Store            vectorstore.Store
	Metrics          *metrics.Recorder
}

// Stages monta extract, chunk, enrich, embed e load, nessa ordem.
func Stages(d Deps) []Stage {
	return []Stage{
		StageFunc(StageExtract, d.runExtract),
		StageFunc(StageChunk, d.runChunk),
		StageFunc(StageEnrich, d.runEnrich),
		StageFunc(StageEmbed, d.runEmbed),
		StageFunc(StageLoad, d.runLoad),
	}
}

func (d Deps) runExtract(ctx context.Context, job *Job) error {
	rec := job.Record
	name := path.Base(rec.Key)
	if name == "." || name == "/" {
		name = "source"
	}
	job.LocalPath = job.Workspace.Path(name)

	size, err := d.Downloader.Download(ctx, rec.Bucket, rec.Key, job.LocalPath)
	if err != nil {
		return err
	}
	job.Log.Debug().Int64("bytes", size).Str("path", job.LocalPath).Msg("documento baixado")

	out, err := d.Extractor.Extract(ctx, job.LocalPath)
	if err != nil {
		return err
	}
	job.Extraction = out
	job.Log.Info().
		Str("format", out.Format).
		Int("sections", len(out.Sections)).
		Int("words", out.WordCount()).
		Msg("texto extraído")
	return nil
}

func (d Deps) runChunk(_ context.Context, job *Job) error {
	if job.Extraction == nil {
		return errors.New("no extraction available")
	}
	job.Chunks = d.Chunker.Chunk(job.Extraction.Sections)
	if len(job.Chunks) == 0 {
		return ErrNoChunks
	}
	d.Metrics.Count(metrics.ChunksProduced, float64(len(job.Chunks)))
	return nil
}

func (d Deps) runEnrich(_ context.Context, job *Job) error {
	rec := job.Record
	doc := enrich.Document{
		ID:       rec.DocumentID,
		Source:   rec.SourceURI(),
		FileName: rec.FileName,
	}
	if x := job.Extraction; x != nil {
		doc.Title = x.Title
		doc.Format = x.Format
		doc.PageCount = x.PageCount
	}

	out, err := d.Enricher.Enrich(doc, job.Chunks)
	if err != nil {
		return err
	}
	if len(out) == 0 {
		return fmt.Errorf("%w after filter", ErrNoChunks)
	}
	job.Enriched = out
	return nil
}

func (d Deps) runEmbed(ctx context.Context, job *Job) error {
	texts := make([]string, len(job.Enriched))
	for i, c := range job.Enriched {
		texts[i] = c.Text
	}

	vectors, err := embed.Batch(ctx, d.Embedder, texts, d.EmbedBatchSize, d.EmbedConcurrency)
	if err != nil {
		return err
	}
	job.Vectors = vectors
	return nil
}

// runLoad remove os vetores anteriores do documento antes de gravar os novos.
func (d Deps) runLoad(ctx context.Context, job *Job) error {
	if len(job.Vectors) != len(job.Enriched) {
		return fmt.Errorf("have %d vectors for %d chunks", len(job.Vectors), len(job.Enriched))
	}

	if err := d.Store.DeleteDocument(ctx, job.Record.DocumentID); err != nil {
		return err
	}

	records := make([]vectorstore.Record, len(job.Enriched))
	for i, c := range job.Enriched {
		meta := make(map[string]string, len(c.Metadata)+1)
		for k, v := range c.Metadata {
			meta[k] = v
		}
		meta["content_hash"] = c.ContentHash
		if c.Context != "" {
			meta["context"] = c.Context
		}
		records[i] = vectorstore.Record{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			Text:       c.Text,
			Vector:     job.Vectors[i],
			Metadata:   meta,
		}
	}

	n, err := d.Store.Upsert(ctx, records)
	if err != nil {
		return err
	}
	job.VectorCount = n
	d.Metrics.Count(metrics.VectorsLoaded, float64(n))
	return nil
}
