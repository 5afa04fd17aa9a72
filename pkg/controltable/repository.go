package controltable

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/raywall/fast-doc-pipeline/dyndb"
	"github.com/raywall/fast-doc-pipeline/pkg/config"
)

var (
	ErrNotFound          = dyndb.ErrNotFound
	ErrAlreadyRegistered = errors.New("controltable: document already registered")
	ErrAlreadyClaimed    = errors.New("controltable: document is not pending")
	ErrNotOwner          = errors.New("controltable: document is not held by this owner")
	ErrNotFailed         = errors.New("controltable: document is not failed")
)

const maxErrorMessage = 1024

// Repository executa as transições de estado da tabela de controle.
// Toda transição é uma escrita condicional; a tabela é a única fonte de
// exclusão mútua entre instâncias do orquestrador.
type Repository struct {
	store       dyndb.Store[DocumentRecord]
	statusIndex string
	retention   time.Duration
	now         func() time.Time
}

type Option func(*Repository)

// WithRetention grava expires_at nos estados terminais (TTL do DynamoDB).
func WithRetention(d time.Duration) Option {
	return func(r *Repository) { r.retention = d }
}

// WithClock substitui o relógio (testes).
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func NewRepository(store dyndb.Store[DocumentRecord], statusIndex string, opts ...Option) *Repository {
	r := &Repository{
		store:       store,
		statusIndex: statusIndex,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDynamoRepository monta o repositório sobre um cliente DynamoDB.
func NewDynamoRepository(client dyndb.DynamoDBClient, conf config.ControlTableConf) *Repository {
	store := dyndb.New(client, dyndb.TableConfig[DocumentRecord]{
		TableName: conf.TableName,
		HashKey:   "document_id",
	})
	return NewRepository(store, conf.StatusIndex,
		WithRetention(time.Duration(conf.TTLDays)*24*time.Hour))
}

func (r *Repository) timestamp() string {
	return r.now().UTC().Format(TimeLayout)
}

// Register cria o registro PENDING se o documento ainda não existir. Um
// registro terminal (COMPLETED/FAILED) cujo etag difere do novo é rearmado
// para PENDING: o objeto foi sobrescrito com outro conteúdo.
func (r *Repository) Register(ctx context.Context, rec DocumentRecord) (*DocumentRecord, error) {
	if rec.DocumentID == "" {
		rec.DocumentID = DocumentIDFor(rec.Bucket, rec.Key)
	}
	ts := r.timestamp()
	rec.Status = StatusPending
	rec.CreatedAt = ts
	rec.UpdatedAt = ts
	rec.Attempts = 0

	if err := r.store.PutIfNotExists(ctx, rec); err != nil {
		if errors.Is(err, dyndb.ErrConditionFailed) {
			return r.rearm(ctx, rec)
		}
		return nil, fmt.Errorf("controltable: register %s: %w", rec.DocumentID, err)
	}
	return &rec, nil
}

// rearm recoloca na fila uma nova versão do objeto. Sem etag não há como
// distinguir versões e o registro existente é mantido.
func (r *Repository) rearm(ctx context.Context, rec DocumentRecord) (*DocumentRecord, error) {
	if rec.ETag == "" {
		return nil, ErrAlreadyRegistered
	}
	update := expression.
		Set(expression.Name("status"), expression.Value(StatusPending)).
		Set(expression.Name("etag"), expression.Value(rec.ETag)).
		Set(expression.Name("size_bytes"), expression.Value(rec.SizeBytes)).
		Set(expression.Name("updated_at"), expression.Value(rec.UpdatedAt)).
		Remove(expression.Name("claimed_by")).
		Remove(expression.Name("claimed_at")).
		Remove(expression.Name("completed_at")).
		Remove(expression.Name("current_stage")).
		Remove(expression.Name("stages_completed")).
		Remove(expression.Name("error_message")).
		Remove(expression.Name("error_stage")).
		Remove(expression.Name("expires_at"))
	cond := expression.In(expression.Name("status"),
		expression.Value(StatusCompleted), expression.Value(StatusFailed)).
		And(expression.Or(
			expression.AttributeNotExists(expression.Name("etag")),
			expression.NotEqual(expression.Name("etag"), expression.Value(rec.ETag)),
		))

	updated, err := r.store.Update(ctx, rec.DocumentID, nil, update, &cond)
	if err != nil {
		if errors.Is(err, dyndb.ErrConditionFailed) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("controltable: rearm %s: %w", rec.DocumentID, err)
	}
	return updated, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*DocumentRecord, error) {
	rec, err := r.store.Get(ctx, id, nil)
	if err != nil {
		if errors.Is(err, dyndb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("controltable: get %s: %w", id, err)
	}
	return rec, nil
}

// ListPending devolve os documentos PENDING mais antigos primeiro.
func (r *Repository) ListPending(ctx context.Context, limit int32) ([]DocumentRecord, error) {
	recs, _, err := r.ListByStatus(ctx, StatusPending, limit, "")
	return recs, err
}

// ListByStatus consulta o GSI de status (sort key created_at) com paginação.
func (r *Repository) ListByStatus(ctx context.Context, status Status, limit int32, token string) ([]DocumentRecord, string, error) {
	if !status.Valid() {
		return nil, "", fmt.Errorf("controltable: invalid status %q", status)
	}

	q := r.store.Query().
		Index(r.statusIndex).
		KeyEqual("status", string(status)).
		ScanForward(true).
		LastKey(token)
	if limit > 0 {
		q = q.Limit(limit)
	}

	recs, next, err := q.Exec(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("controltable: list %s: %w", status, err)
	}
	return recs, next, nil
}

// Claim executa a transição PENDING -> IN_PROGRESS. Se outra instância já
// tiver reivindicado o documento a condição falha e ErrAlreadyClaimed é
// devolvido.
func (r *Repository) Claim(ctx context.Context, id, owner string) (*DocumentRecord, error) {
	ts := r.timestamp()
	update := expression.
		Set(expression.Name("status"), expression.Value(StatusInProgress)).
		Set(expression.Name("claimed_by"), expression.Value(owner)).
		Set(expression.Name("claimed_at"), expression.Value(ts)).
		Set(expression.Name("updated_at"), expression.Value(ts)).
		Add(expression.Name("attempts"), expression.Value(1)).
		Remove(expression.Name("error_message")).
		Remove(expression.Name("error_stage")).
		Remove(expression.Name("current_stage")).
		Remove(expression.Name("stages_completed"))
	cond := expression.Equal(expression.Name("status"), expression.Value(StatusPending))

	rec, err := r.store.Update(ctx, id, nil, update, &cond)
	if err != nil {
		if errors.Is(err, dyndb.ErrConditionFailed) {
			return nil, ErrAlreadyClaimed
		}
		return nil, fmt.Errorf("controltable: claim %s: %w", id, err)
	}
	return rec, nil
}

// MarkStage registra o progresso; o último elemento de completed vira current_stage.
func (r *Repository) MarkStage(ctx context.Context, id, owner string, completed []string) error {
	if len(completed) == 0 {
		return nil
	}
	update := expression.
		Set(expression.Name("current_stage"), expression.Value(completed[len(completed)-1])).
		Set(expression.Name("stages_completed"), expression.Value(completed)).
		Set(expression.Name("updated_at"), expression.Value(r.timestamp()))

	_, err := r.updateOwned(ctx, "mark stage", id, owner, update)
	return err
}

// Complete encerra o documento com sucesso.
func (r *Repository) Complete(ctx context.Context, id, owner string, chunks, vectors int) (*DocumentRecord, error) {
	ts := r.timestamp()
	update := expression.
		Set(expression.Name("status"), expression.Value(StatusCompleted)).
		Set(expression.Name("completed_at"), expression.Value(ts)).
		Set(expression.Name("updated_at"), expression.Value(ts)).
		Set(expression.Name("chunk_count"), expression.Value(chunks)).
		Set(expression.Name("vector_count"), expression.Value(vectors))
	update = r.withExpiry(update)

	return r.updateOwned(ctx, "complete", id, owner, update)
}

// Fail encerra o documento com erro, guardando o estágio e a mensagem.
func (r *Repository) Fail(ctx context.Context, id, owner, stage string, cause error) (*DocumentRecord, error) {
	msg := "unknown error"
	if cause != nil {
		msg = truncate(cause.Error(), maxErrorMessage)
	}
	update := expression.
		Set(expression.Name("status"), expression.Value(StatusFailed)).
		Set(expression.Name("error_message"), expression.Value(msg)).
		Set(expression.Name("updated_at"), expression.Value(r.timestamp()))
	if stage != "" {
		update = update.Set(expression.Name("error_stage"), expression.Value(stage))
	}
	update = r.withExpiry(update)

	return r.updateOwned(ctx, "fail", id, owner, update)
}

// Release devolve um documento IN_PROGRESS para PENDING (abandono limpo no shutdown).
func (r *Repository) Release(ctx context.Context, id, owner string) (*DocumentRecord, error) {
	update := expression.
		Set(expression.Name("status"), expression.Value(StatusPending)).
		Set(expression.Name("updated_at"), expression.Value(r.timestamp())).
		Remove(expression.Name("claimed_by")).
		Remove(expression.Name("claimed_at"))

	return r.updateOwned(ctx, "release", id, owner, update)
}

// Retry recoloca um documento FAILED na fila (ação de operador).
func (r *Repository) Retry(ctx context.Context, id string) (*DocumentRecord, error) {
	update := expression.
		Set(expression.Name("status"), expression.Value(StatusPending)).
		Set(expression.Name("updated_at"), expression.Value(r.timestamp())).
		Remove(expression.Name("claimed_by")).
		Remove(expression.Name("claimed_at")).
		Remove(expression.Name("error_message")).
		Remove(expression.Name("error_stage")).
		Remove(expression.Name("expires_at"))
	cond := expression.Equal(expression.Name("status"), expression.Value(StatusFailed))

	rec, err := r.store.Update(ctx, id, nil, update, &cond)
	if err != nil {
		if errors.Is(err, dyndb.ErrConditionFailed) {
			return nil, ErrNotFailed
		}
		return nil, fmt.Errorf("controltable: retry %s: %w", id, err)
	}
	return rec, nil
}

func (r *Repository) updateOwned(ctx context.Context, op, id, owner string, update expression.UpdateBuilder) (*DocumentRecord, error) {
	cond := expression.Equal(expression.Name("status"), expression.Value(StatusInProgress)).
		And(expression.Equal(expression.Name("claimed_by"), expression.Value(owner)))

	rec, err := r.store.Update(ctx, id, nil, update, &cond)
	if err != nil {
		if errors.Is(err, dyndb.ErrConditionFailed) {
			return nil, ErrNotOwner
		}
		return nil, fmt.Errorf("controltable: %s %s: %w", op, id, err)
	}
	return rec, nil
}

func (r *Repository) withExpiry(update expression.UpdateBuilder) expression.UpdateBuilder {
	if r.retention <= 0 {
		return update
	}
	return update.Set(expression.Name("expires_at"), expression.Value(r.now().Add(r.retention).Unix()))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
