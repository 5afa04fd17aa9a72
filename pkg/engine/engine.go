// Package engine monta o orquestrador a partir da configuração: logger,
// métricas, tabela de controle, os cinco estágios, servidor admin e waker.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/raywall/fast-doc-pipeline/pkg/chunk"
	"github.com/raywall/fast-doc-pipeline/pkg/config"
	"github.com/raywall/fast-doc-pipeline/pkg/controltable"
	"github.com/raywall/fast-doc-pipeline/pkg/embed"
	"github.com/raywall/fast-doc-pipeline/pkg/enrich"
	"github.com/raywall/fast-doc-pipeline/pkg/extract"
	"github.com/raywall/fast-doc-pipeline/pkg/logger"
	"github.com/raywall/fast-doc-pipeline/pkg/metrics"
	"github.com/raywall/fast-doc-pipeline/pkg/observability"
	"github.com/raywall/fast-doc-pipeline/pkg/orchestrator"
	"github.com/raywall/fast-doc-pipeline/pkg/pipeline"
	"github.com/raywall/fast-doc-pipeline/pkg/rules"
	"github.com/raywall/fast-doc-pipeline/pkg/storage"
	"github.com/raywall/fast-doc-pipeline/pkg/transport"
	"github.com/raywall/fast-doc-pipeline/pkg/vectorstore"
	"github.com/raywall/fast-doc-pipeline/pkg/workspace"
	"github.com/rs/zerolog"
)

const adminShutdownTimeout = 5 * time.Second

// Engine é o grafo de componentes de uma instância do orquestrador.
type Engine struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Metrics      observability.Provider
	Repository   *controltable.Repository
	Orchestrator *orchestrator.Orchestrator
	Admin        *transport.Server
	Waker        *orchestrator.Waker
	Workspaces   *workspace.Manager
	Owner        string

	store   vectorstore.Store
	closers []io.Closer
}

type Option func(*options)

type options struct {
	store    vectorstore.Store
	embedder embed.Embedder
	provider observability.Provider
}

// WithStore substitui o vector store do provider configurado.
func WithStore(s vectorstore.Store) Option {
	return func(o *options) { o.store = s }
}

// WithEmbedder substitui o embedder do provider configurado (sem cache).
func WithEmbedder(e embed.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

func WithMetricsProvider(p observability.Provider) Option {
	return func(o *options) { o.provider = p }
}

// New monta todos os componentes. Em caso de erro os recursos já abertos são fechados.
func New(ctx context.Context, cfg *config.Config, clients Clients, opts ...Option) (eng *Engine, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := logger.Configure(cfg.Logging).With().Str("service", cfg.Service.Name).Logger()
	e := &Engine{Config: cfg, Logger: log, Owner: InstanceID(cfg.Service)}
	defer func() {
		if err != nil {
			_ = e.Close()
		}
	}()

	if o.provider == nil {
		if o.provider, err = observability.SetupMetrics(cfg.Metrics); err != nil {
			return nil, fmt.Errorf("falha métricas: %w", err)
		}
	}
	e.Metrics = o.provider
	e.closers = append(e.closers, o.provider)
	recorder := metrics.NewRecorder(o.provider, []string{"service:" + cfg.Service.Name}, log)

	rm, err := rules.NewRuleManager()
	if err != nil {
		return nil, fmt.Errorf("falha fatal ao iniciar RuleManager: %w", err)
	}

	if clients.Dynamo == nil || clients.S3 == nil {
		return nil, fmt.Errorf("clientes DynamoDB e S3 são obrigatórios")
	}
	e.Repository = controltable.NewDynamoRepository(clients.Dynamo, cfg.ControlTable)

	if e.Workspaces, err = workspace.NewManager(cfg.Orchestrator.WorkspaceDir, logger.Component(log, "workspace")); err != nil {
		return nil, err
	}

	chunker, err := chunk.New(cfg.Chunking)
	if err != nil {
		return nil, fmt.Errorf("falha chunker: %w", err)
	}
	enricher, err := enrich.New(cfg.Enrichment, rm)
	if err != nil {
		return nil, fmt.Errorf("falha enricher: %w", err)
	}

	embedder := o.embedder
	if embedder == nil {
		if embedder, err = e.buildEmbedder(cfg.Embedding, clients); err != nil {
			return nil, err
		}
	}

	e.store = o.store
	if e.store == nil {
		if e.store, err = vectorstore.Open(ctx, cfg.VectorStore, embedder.Dimension()); err != nil {
			return nil, fmt.Errorf("falha vector store: %w", err)
		}
	}
	e.closers = append(e.closers, e.store)

	stages := pipeline.Stages(pipeline.Deps{
		Downloader:       storage.NewDownloader(clients.S3, cfg.Source.MaxSizeBytes),
		Extractor:        extract.NewRegistry(),
		Chunker:          chunker,
		Enricher:         enricher,
		Embedder:         embedder,
		EmbedBatchSize:   cfg.Embedding.BatchSize,
		EmbedConcurrency: cfg.Embedding.Concurrency,
		Store:            e.store,
		Metrics:          recorder,
	})

	e.Orchestrator = orchestrator.New(e.Repository, stages, e.Workspaces, cfg.Orchestrator, e.Owner,
		orchestrator.WithMetrics(recorder),
		orchestrator.WithLogger(logger.Component(log, "orchestrator")))

	if cfg.Service.AdminPort > 0 {
		e.Admin = transport.NewServer(e.Repository, e.Orchestrator, cfg.Service.AdminPort, logger.Component(log, "admin"))
	}
	if cfg.Orchestrator.WakeQueueURL != "" && clients.SQS != nil {
		e.Waker = orchestrator.NewWaker(clients.SQS, cfg.Orchestrator.WakeQueueURL, e.Orchestrator.Wake, log)
	}

	log.Info().
		Str("owner", e.Owner).
		Str("chunking", chunker.Strategy()).
		Str("embedding", cfg.Embedding.Provider+"/"+embedder.Model()).
		Str("vector_store", cfg.VectorStore.Provider).
		Strs("stages", pipelineNames(stages)).
		Msg("pipeline montado")

	return e, nil
}

func (e *Engine) buildEmbedder(cfg config.EmbeddingConf, clients Clients) (embed.Embedder, error) {
	embedder, err := embed.New(cfg, clients.Bedrock)
	if err != nil {
		return nil, fmt.Errorf("falha embedder: %w", err)
	}
	if !cfg.Cache.Enabled {
		return embedder, nil
	}

	client := clients.Redis
	if client == nil {
		rc := embed.NewRedisClient(cfg.Cache)
		e.closers = append(e.closers, rc)
		client = rc
	}
	return embed.NewCached(embedder, client, cfg.Cache.TTL, logger.Component(e.Logger, "embed_cache")), nil
}

// Run limpa workspaces antigos, sobe admin e waker e bloqueia no loop do
// orquestrador. Ao retornar, admin e waker já foram encerrados.
func (e *Engine) Run(ctx context.Context) error {
	if n, err := e.Workspaces.Sweep(sweepAge(e.Config.Orchestrator)); err != nil {
		e.Logger.Warn().Err(err).Msg("falha ao limpar workspaces antigos")
	} else if n > 0 {
		e.Logger.Info().Int("removed", n).Msg("workspaces órfãos removidos")
	}

	wakeCtx, stopWake := context.WithCancel(ctx)
	defer stopWake()
	if e.Waker != nil {
		go e.Waker.Start(wakeCtx)
	}

	adminDone := make(chan struct{})
	if e.Admin != nil {
		go func() {
			defer close(adminDone)
			if err := e.Admin.Start(); err != nil {
				e.Logger.Error().Err(err).Msg("servidor admin encerrado com erro")
			}
		}()
	} else {
		close(adminDone)
	}

	err := e.Orchestrator.Run(ctx)
	stopWake()

	if e.Admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), adminShutdownTimeout)
		defer cancel()
		if serr := e.Admin.Shutdown(shutdownCtx); serr != nil {
			e.Logger.Warn().Err(serr).Msg("falha ao encerrar servidor admin")
		}
		<-adminDone
	}
	return err
}

// ShutdownOnSignal pede o desligamento no primeiro sinal e chama cancel
// depois de grace, ou imediatamente num segundo sinal. Retorna quando ctx
// termina.
func (e *Engine) ShutdownOnSignal(ctx context.Context, signals <-chan os.Signal, grace time.Duration, cancel context.CancelFunc) {
	select {
	case <-ctx.Done():
		return
	case sig := <-signals:
		e.Logger.Info().Str("signal", sig.String()).Dur("grace", grace).Msg("sinal recebido, encerrando")
		e.Orchestrator.Shutdown()
	}

	var deadline <-chan time.Time
	if grace > 0 {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-ctx.Done():
	case <-deadline:
		e.Logger.Warn().Msg("grace period esgotado, cancelando estágio em andamento")
		cancel()
	case <-signals:
		e.Logger.Warn().Msg("segundo sinal, cancelando imediatamente")
		cancel()
	}
}

// Close libera vector store, cliente Redis e métricas.
func (e *Engine) Close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	e.closers = nil
	return first
}

// InstanceID usa service.instance_id ou hostname com sufixo aleatório, de
// modo que dois processos no mesmo host tenham owners distintos.
func InstanceID(cfg config.ServiceConf) string {
	if cfg.InstanceID != "" {
		return cfg.InstanceID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = cfg.Name
	}
	return host + "-" + uuid.NewString()[:8]
}

// sweepAge é maior que o tempo máximo de um processamento em andamento.
func sweepAge(cfg config.OrchestratorConf) time.Duration {
	return max(time.Hour, 5*cfg.StageTimeout+cfg.ShutdownGrace)
}

func pipelineNames(stages []pipeline.Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}
	return names
}
