package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	_ "github.com/lib/pq" // driver postgres
	"github.com/pgvector/pgvector-go"
	"github.com/raywall/fast-doc-pipeline/pkg/config"
)

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// PGVector grava em uma tabela Postgres com a extensão vector.
type PGVector struct {
	db        *sql.DB
	table     string
	dimension int
}

// OpenPGVector conecta via lib/pq e garante a extensão e a tabela.
func OpenPGVector(ctx context.Context, cfg config.PGVectorConf, dimension int) (*PGVector, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: erro ao abrir conexão SQL: %w", err)
	}

	store, err := NewPGVector(db, cfg.Table, dimension)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewPGVector(db *sql.DB, table string, dimension int) (*PGVector, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("pgvector: invalid table name %q", table)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("pgvector: dimension must be positive")
	}
	return &PGVector{db: db, table: table, dimension: dimension}, nil
}

func (p *PGVector) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id text PRIMARY KEY,
	document_id text NOT NULL,
	content text NOT NULL,
	metadata jsonb,
	embedding vector(%d) NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
)`, p.table, p.dimension),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_document_id_idx ON %s (document_id)", p.table, p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector: schema: %w", err)
		}
	}
	return nil
}

// Upsert grava tudo em uma transação; qualquer falha desfaz o lote.
func (p *PGVector) Upsert(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("pgvector: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, document_id, content, metadata, embedding, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (id) DO UPDATE SET
	document_id = EXCLUDED.document_id,
	content = EXCLUDED.content,
	metadata = EXCLUDED.metadata,
	embedding = EXCLUDED.embedding,
	updated_at = now()`, p.table))
	if err != nil {
		return 0, fmt.Errorf("pgvector: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if len(r.Vector) != p.dimension {
			return 0, fmt.Errorf("pgvector: record %s has dimension %d, expected %d", r.ID, len(r.Vector), p.dimension)
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.DocumentID, r.Text, string(meta), pgvector.NewVector(r.Vector)); err != nil {
			return 0, fmt.Errorf("pgvector: upsert %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("pgvector: commit: %w", err)
	}
	return len(records), nil
}

func (p *PGVector) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := p.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", p.table), documentID)
	if err != nil {
		return fmt.Errorf("pgvector: delete %s: %w", documentID, err)
	}
	return nil
}

func (p *PGVector) Close() error { return p.db.Close() }
