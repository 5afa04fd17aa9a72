package main

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-playground/validator/v10"
	"github.com/raywall/fast-doc-pipeline/envloader"
	"github.com/raywall/fast-doc-pipeline/pkg/awsutil"
	"github.com/raywall/fast-doc-pipeline/pkg/config"
	"github.com/raywall/fast-doc-pipeline/pkg/controltable"
	"github.com/raywall/fast-doc-pipeline/pkg/ingest"
	"github.com/raywall/fast-doc-pipeline/pkg/logger"
	"github.com/raywall/fast-doc-pipeline/pkg/metrics"
	"github.com/raywall/fast-doc-pipeline/pkg/observability"
	"github.com/raywall/fast-doc-pipeline/pkg/storage"
	"github.com/rs/zerolog"
)

// Settings é a configuração do Lambda, lida apenas do ambiente.
type Settings struct {
	EventSource  string `env:"INGEST_EVENT_SOURCE" envDefault:"s3" validate:"oneof=s3 sqs"`
	StatObjects  bool   `env:"INGEST_STAT_OBJECTS"`
	WakeQueueURL string `env:"WAKE_QUEUE_URL"`
	Logging      config.LoggingConf
	Metrics      config.MetricsConf
	AWS          config.AWSConf
	ControlTable config.ControlTableConf
	Source       config.SourceConf
}

var (
	// Injetável para testes
	lambdaStarter   = lambda.Start
	awsConfigLoader = awsutil.GetAWSConfig
)

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

func run(ctx context.Context) error {
	var s Settings
	if err := envloader.Load(&s); err != nil {
		return err
	}
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("configuração inválida: %w", err)
	}

	base := logger.Configure(s.Logging)

	awsCfg, err := awsConfigLoader(ctx, s.AWS.Region, s.AWS.Endpoint)
	if err != nil {
		return fmt.Errorf("falha ao carregar configuração AWS: %w", err)
	}

	provider, err := observability.SetupMetrics(s.Metrics)
	if err != nil {
		return fmt.Errorf("falha métricas: %w", err)
	}

	repo := controltable.NewDynamoRepository(dynamodb.NewFromConfig(awsCfg), s.ControlTable)
	opts := []ingest.Option{
		ingest.WithMetrics(metrics.NewRecorder(provider, []string{"function:ingest"}, base)),
	}
	if s.StatObjects {
		opts = append(opts, ingest.WithStatter(storage.NewDownloader(s3.NewFromConfig(awsCfg), 0)))
	}
	if s.WakeQueueURL != "" {
		opts = append(opts, ingest.WithWakeQueue(sqs.NewFromConfig(awsCfg), s.WakeQueueURL))
	}
	handler := ingest.NewHandler(repo, s.Source, opts...)

	start(s.EventSource, handler, base)
	return nil
}

// start escolhe o handler pela origem do evento.
func start(source string, h *ingest.Handler, log zerolog.Logger) {
	log.Info().Str("event_source", source).Msg("lambda de ingestão iniciado")
	switch source {
	case "sqs":
		lambdaStarter(h.HandleSQS)
	default:
		lambdaStarter(h.HandleS3)
	}
}
