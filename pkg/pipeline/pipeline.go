// Package pipeline encadeia os cinco estágios de processamento de um
// documento e decide, entre um estágio e outro, se deve continuar.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raywall/fast-doc-pipeline/pkg/chunk"
	"github.com/raywall/fast-doc-pipeline/pkg/controltable"
	"github.com/raywall/fast-doc-pipeline/pkg/enrich"
	"github.com/raywall/fast-doc-pipeline/pkg/extract"
	"github.com/raywall/fast-doc-pipeline/pkg/metrics"
	"github.com/raywall/fast-doc-pipeline/pkg/workspace"
	"github.com/rs/zerolog"
)

// ErrShutdown indica que o processamento foi abandonado entre estágios.
var ErrShutdown = errors.New("pipeline: shutdown requested")

// StageError identifica o estágio que falhou.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Job carrega o estado de um documento ao longo dos estágios.
type Job struct {
	RunID     string
	Record    controltable.DocumentRecord
	Workspace *workspace.Workspace
	Log       zerolog.Logger

	LocalPath  string
	Extraction *extract.Extraction
	Chunks     []chunk.Chunk
	Enriched   []enrich.Chunk
	Vectors    [][]float32

	VectorCount int
	Completed   []string
}

type Stage interface {
	Name() string
	Run(ctx context.Context, job *Job) error
}

// StageFunc adapta uma função a um Stage nomeado.
func StageFunc(name string, run func(ctx context.Context, job *Job) error) Stage {
	return stageFunc{name: name, run: run}
}

type stageFunc struct {
	name string
	run  func(ctx context.Context, job *Job) error
}

func (s stageFunc) Name() string                            { return s.name }
func (s stageFunc) Run(ctx context.Context, job *Job) error { return s.run(ctx, job) }

// Signal informa se o desligamento foi pedido.
type Signal interface {
	Requested() bool
}

// SignalFunc adapta uma função ao Signal.
type SignalFunc func() bool

func (f SignalFunc) Requested() bool { return f() }

// Hook é chamado depois de cada estágio concluído.
type Hook func(ctx context.Context, job *Job, stage string) error

type Runner struct {
	stages  []Stage
	timeout time.Duration
	metrics *metrics.Recorder
	hook    Hook
}

type Option func(*Runner)

// WithStageTimeout limita a duração de cada estágio; zero desabilita.
func WithStageTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = m }
}

// OnStageComplete registra o hook de conclusão de estágio.
func OnStageComplete(h Hook) Option {
	return func(r *Runner) { r.hook = h }
}

func NewRunner(stages []Stage, opts ...Option) *Runner {
	r := &Runner{stages: stages}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Names devolve os nomes dos estágios na ordem de execução.
func (r *Runner) Names() []string {
	names := make([]string, len(r.stages))
	for i, s := range r.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executa os estágios em sequência. O sinal de desligamento é verificado
// antes de cada estágio; um estágio em andamento nunca é interrompido por ele.
// Se ctx for cancelado durante um estágio, o erro devolvido é ErrShutdown.
func (r *Runner) Run(ctx context.Context, job *Job, shutdown Signal) error {
	for _, stage := range r.stages {
		name := stage.Name()
		if shutdown != nil && shutdown.Requested() {
			return ErrShutdown
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrShutdown, err)
		}

		job.Log.Debug().Str("stage", name).Msg("iniciando estágio")
		start := time.Now()
		err := r.runStage(ctx, stage, job)
		elapsed := time.Since(start)

		status := "ok"
		if err != nil {
			status = "error"
		}
		r.metrics.Duration(metrics.StageDuration, elapsed, "stage:"+name, "status:"+status)

		if err != nil {
			// Cancelamento do contexto raiz (grace esgotado) é desligamento, não falha do estágio
			if ctx.Err() != nil {
				return fmt.Errorf("%w: stage %s: %v", ErrShutdown, name, err)
			}
			return &StageError{Stage: name, Err: err}
		}
		job.Completed = append(job.Completed, name)
		job.Log.Info().Str("stage", name).Dur("elapsed", elapsed).Msg("estágio concluído")

		if r.hook != nil {
			if err := r.hook(ctx, job, name); err != nil {
				if ctx.Err() != nil {
					return fmt.Errorf("%w: mark stage %s: %v", ErrShutdown, name, err)
				}
				return &StageError{Stage: name, Err: fmt.Errorf("mark stage: %w", err)}
			}
		}
	}
	return nil
}

func (r *Runner) runStage(ctx context.Context, stage Stage, job *Job) error {
	if r.timeout <= 0 {
		return stage.Run(ctx, job)
	}
	stageCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := stage.Run(stageCtx, job)
	if err != nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("timeout after %s: %w", r.timeout, err)
	}
	return err
}
