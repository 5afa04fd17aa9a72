// Package orchestrator implementa o loop de polling: busca documentos
// PENDING, faz o claim condicional e executa o pipeline de um por vez.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/raywall/fast-doc-pipeline/pkg/config"
	"github.com/raywall/fast-doc-pipeline/pkg/controltable"
	"github.com/raywall/fast-doc-pipeline/pkg/metrics"
	"github.com/raywall/fast-doc-pipeline/pkg/pipeline"
	"github.com/raywall/fast-doc-pipeline/pkg/workspace"
	"github.com/rs/zerolog"
)

// terminalWriteTimeout limita as escritas finais na tabela de controle, que
// usam um contexto desacoplado do cancelamento do loop.
const terminalWriteTimeout = 10 * time.Second

// Repository é o subconjunto da tabela de controle usado pelo loop.
type Repository interface {
	ListPending(ctx context.Context, limit int32) ([]controltable.DocumentRecord, error)
	Claim(ctx context.Context, id, owner string) (*controltable.DocumentRecord, error)
	MarkStage(ctx context.Context, id, owner string, completed []string) error
	Complete(ctx context.Context, id, owner string, chunks, vectors int) (*controltable.DocumentRecord, error)
	Fail(ctx context.Context, id, owner, stage string, cause error) (*controltable.DocumentRecord, error)
	Release(ctx context.Context, id, owner string) (*controltable.DocumentRecord, error)
}

// Stats é um retrato dos contadores do loop.
type Stats struct {
	Owner          string    `json:"owner"`
	ShuttingDown   bool      `json:"shutting_down"`
	Claimed        int64     `json:"claimed"`
	Completed      int64     `json:"completed"`
	Failed         int64     `json:"failed"`
	Released       int64     `json:"released"`
	ClaimConflicts int64     `json:"claim_conflicts"`
	LastPoll       time.Time `json:"last_poll,omitempty"`
	Current        string    `json:"current_document,omitempty"`
}

type Orchestrator struct {
	repo       Repository
	stages     []pipeline.Stage
	workspaces *workspace.Manager
	cfg        config.OrchestratorConf
	owner      string
	metrics    *metrics.Recorder
	log        zerolog.Logger

	shutdown atomic.Bool
	wake     chan struct{}

	claimed, completed, failed, released, conflicts atomic.Int64

	mu       sync.Mutex
	lastPoll time.Time
	current  string
}

type Option func(*Orchestrator)

func WithMetrics(m *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// New cria o orquestrador. owner identifica a instância no claimed_by.
func New(repo Repository, stages []pipeline.Stage, workspaces *workspace.Manager, cfg config.OrchestratorConf, owner string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:       repo,
		stages:     stages,
		workspaces: workspaces,
		cfg:        cfg,
		owner:      owner,
		log:        zerolog.Nop(),
		wake:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Shutdown pede o encerramento. O documento em andamento termina o estágio
// atual e é liberado; o loop não busca novos documentos.
func (o *Orchestrator) Shutdown() {
	if o.shutdown.CompareAndSwap(false, true) {
		o.log.Info().Msg("desligamento solicitado")
		o.Wake()
	}
}

// Requested implementa pipeline.Signal.
func (o *Orchestrator) Requested() bool { return o.shutdown.Load() }

// Wake antecipa o próximo poll. Chamadas repetidas se acumulam em um só.
func (o *Orchestrator) Wake() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Stats{
		Owner:          o.owner,
		ShuttingDown:   o.shutdown.Load(),
		Claimed:        o.claimed.Load(),
		Completed:      o.completed.Load(),
		Failed:         o.failed.Load(),
		Released:       o.released.Load(),
		ClaimConflicts: o.conflicts.Load(),
		LastPoll:       o.lastPoll,
		Current:        o.current,
	}
}

// Run executa o loop até o desligamento ou o cancelamento de ctx.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info().
		Str("owner", o.owner).
		Dur("poll_interval", o.cfg.PollInterval).
		Int32("batch_size", o.cfg.BatchSize).
		Msg("orquestrador iniciado")

	for !o.Requested() && ctx.Err() == nil {
		processed, err := o.PollOnce(ctx)
		if err != nil {
			o.log.Error().Err(err).Msg("falha ao consultar documentos pendentes")
		}
		if processed {
			continue
		}
		o.sleep(ctx, o.cfg.PollInterval)
	}

	o.log.Info().Msg("orquestrador encerrado")
	return nil
}

// PollOnce busca candidatos e processa o primeiro claim bem-sucedido.
func (o *Orchestrator) PollOnce(ctx context.Context) (bool, error) {
	o.mu.Lock()
	o.lastPoll = time.Now().UTC()
	o.mu.Unlock()

	candidates, err := o.repo.ListPending(ctx, o.cfg.BatchSize)
	if err != nil {
		return false, err
	}
	o.metrics.Gauge(metrics.PendingDocuments, float64(len(candidates)))

	for _, c := range candidates {
		if o.Requested() || ctx.Err() != nil {
			return false, nil
		}

		rec, err := o.repo.Claim(ctx, c.DocumentID, o.owner)
		if errors.Is(err, controltable.ErrAlreadyClaimed) {
			o.conflicts.Add(1)
			o.metrics.Count(metrics.ClaimConflicts, 1)
			o.log.Debug().Str("document_id", c.DocumentID).Msg("documento já reivindicado por outra instância")
			continue
		}
		if err != nil {
			o.log.Error().Err(err).Str("document_id", c.DocumentID).Msg("falha no claim")
			continue
		}

		o.claimed.Add(1)
		o.metrics.Count(metrics.DocumentsClaimed, 1)
		o.process(ctx, *rec)
		return true, nil
	}
	return false, nil
}

func (o *Orchestrator) process(ctx context.Context, rec controltable.DocumentRecord) {
	runID := uuid.NewString()
	log := o.log.With().Str("document_id", rec.DocumentID).Str("run_id", runID).Logger()
	log.Info().Str("source", rec.SourceURI()).Int("attempt", rec.Attempts).Msg("documento reivindicado")

	o.setCurrent(rec.DocumentID)
	defer o.setCurrent("")

	ws, err := o.workspaces.Acquire(rec.DocumentID)
	if err != nil {
		o.fail(ctx, log, rec, "workspace", err)
		return
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			log.Warn().Err(err).Str("dir", ws.Dir()).Msg("falha ao remover workspace")
		}
	}()

	job := &pipeline.Job{RunID: runID, Record: rec, Workspace: ws, Log: log}
	runner := pipeline.NewRunner(o.stages,
		pipeline.WithStageTimeout(o.cfg.StageTimeout),
		pipeline.WithMetrics(o.metrics),
		pipeline.OnStageComplete(func(ctx context.Context, job *pipeline.Job, _ string) error {
			return o.repo.MarkStage(ctx, rec.DocumentID, o.owner, job.Completed)
		}),
	)

	err = runner.Run(ctx, job, o)

	var stageErr *pipeline.StageError
	switch {
	case err == nil:
		wctx, cancel := terminalContext(ctx)
		defer cancel()
		if _, err := o.repo.Complete(wctx, rec.DocumentID, o.owner, len(job.Enriched), job.VectorCount); err != nil {
			log.Error().Err(err).Msg("falha ao marcar documento como COMPLETED")
			return
		}
		o.completed.Add(1)
		o.metrics.Count(metrics.DocumentsCompleted, 1)
		log.Info().Int("chunks", len(job.Enriched)).Int("vectors", job.VectorCount).Msg("documento concluído")

	case errors.Is(err, pipeline.ErrShutdown):
		if !o.cfg.ReleaseOnShutdown {
			log.Warn().Strs("stages_completed", job.Completed).Msg("desligamento: documento mantido IN_PROGRESS")
			return
		}
		wctx, cancel := terminalContext(ctx)
		defer cancel()
		if _, err := o.repo.Release(wctx, rec.DocumentID, o.owner); err != nil {
			log.Error().Err(err).Msg("falha ao liberar documento")
			return
		}
		o.released.Add(1)
		o.metrics.Count(metrics.DocumentsReleased, 1)
		log.Info().Strs("stages_completed", job.Completed).Msg("desligamento: documento devolvido para PENDING")

	case errors.As(err, &stageErr):
		o.fail(ctx, log, rec, stageErr.Stage, stageErr.Err)

	default:
		o.fail(ctx, log, rec, "pipeline", err)
	}
}

func (o *Orchestrator) fail(ctx context.Context, log zerolog.Logger, rec controltable.DocumentRecord, stage string, cause error) {
	log.Error().Err(cause).Str("stage", stage).Msg("falha no processamento")

	wctx, cancel := terminalContext(ctx)
	defer cancel()
	if _, err := o.repo.Fail(wctx, rec.DocumentID, o.owner, stage, cause); err != nil {
		log.Error().Err(err).Msg("falha ao marcar documento como FAILED")
		return
	}
	o.failed.Add(1)
	o.metrics.Count(metrics.DocumentsFailed, 1, "stage:"+stage)
}

func (o *Orchestrator) setCurrent(id string) {
	o.mu.Lock()
	o.current = id
	o.mu.Unlock()
}

// terminalContext mantém os valores de ctx mas ignora seu cancelamento.
func terminalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}
