package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/raywall/fast-doc-pipeline/envloader"
	"github.com/raywall/fast-doc-pipeline/pkg/awsutil"
	"github.com/raywall/fast-doc-pipeline/pkg/config"
	"github.com/raywall/fast-doc-pipeline/pkg/engine"
	"github.com/raywall/fast-doc-pipeline/pkg/rules"
)

var (
	configPath string
	// Variáveis injetáveis para mocking
	awsConfigLoader = awsutil.GetAWSConfig
	clientsFactory  = engine.NewClients
	engineRunner    = func(ctx context.Context, e *engine.Engine) error { return e.Run(ctx) }
	signalSource    = func() (<-chan os.Signal, func()) {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		return ch, func() { signal.Stop(ch) }
	}
)

func init() {
	// Vazio: configuração só por variáveis de ambiente
	configPath = os.Getenv("CONFIG_FILE_PATH")
}

func main() {
	if err := run(context.Background(), configPath); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

// run contém a lógica principal testável
func run(ctx context.Context, cfgPath string) error {
	// Região/endpoint vêm do ambiente porque o arquivo pode estar no próprio S3/DynamoDB
	var awsConf config.AWSConf
	if err := envloader.Load(&awsConf); err != nil {
		return err
	}
	awsCfg, err := awsConfigLoader(ctx, awsConf.Region, awsConf.Endpoint)
	if err != nil {
		return fmt.Errorf("falha ao carregar configuração AWS: %w", err)
	}

	cfg, err := loadConfig(ctx, awsCfg, cfgPath)
	if err != nil {
		return err
	}

	eng, err := engine.New(ctx, cfg, clientsFactory(awsCfg))
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signals, stop := signalSource()
	defer stop()
	go eng.ShutdownOnSignal(ctx, signals, cfg.Orchestrator.ShutdownGrace, cancel)

	return engineRunner(ctx, eng)
}

func loadConfig(ctx context.Context, awsCfg aws.Config, cfgPath string) (*config.Config, error) {
	rm, err := rules.NewRuleManager()
	if err != nil {
		return nil, err
	}
	loader := config.NewUniversalLoader(
		config.WithS3(s3.NewFromConfig(awsCfg)),
		config.WithDynamo(dynamodb.NewFromConfig(awsCfg)),
		config.WithParams(awsutil.NewParamStoreFromConfig(awsCfg)),
		config.WithValidator(config.NewValidator(rm)),
	)
	cfg, err := loader.Load(ctx, cfgPath)
	if err != nil {
		return nil, fmt.Errorf("falha ao carregar configuração: %w", err)
	}
	return cfg, nil
}
