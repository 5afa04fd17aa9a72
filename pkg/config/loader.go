package config

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/raywall/fast-doc-pipeline/envloader"
	"github.com/raywall/fast-doc-pipeline/pkg/config/injector"
	"gopkg.in/yaml.v3"
)

// --- Interfaces para Mocking ---

type S3Downloader interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type DynamoGetter interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// UniversalLoader suporta múltiplas fontes de configuração (Local, S3, DynamoDB).
//
// Ordem de precedência: envDefault < YAML < variáveis de ambiente. Depois
// disso as referências ${env.X}, ${ssm./path} e ${secret.id} são resolvidas
// e o resultado é validado.
type UniversalLoader struct {
	validator *ConfigValidator
	injector  *injector.Injector
	s3        S3Downloader
	dynamo    DynamoGetter
}

type LoaderOption func(*UniversalLoader)

func WithS3(client S3Downloader) LoaderOption {
	return func(ul *UniversalLoader) { ul.s3 = client }
}

func WithDynamo(client DynamoGetter) LoaderOption {
	return func(ul *UniversalLoader) { ul.dynamo = client }
}

func WithParams(params injector.ParamSource) LoaderOption {
	return func(ul *UniversalLoader) { ul.injector = injector.New(params) }
}

func WithValidator(v *ConfigValidator) LoaderOption {
	return func(ul *UniversalLoader) { ul.validator = v }
}

// NewUniversalLoader cria uma nova instância.
func NewUniversalLoader(opts ...LoaderOption) *UniversalLoader {
	ul := &UniversalLoader{
		validator: NewValidator(nil),
		injector:  injector.New(nil),
	}
	for _, opt := range opts {
		opt(ul)
	}
	return ul
}

// Load detecta o esquema da fonte e carrega a configuração. Fonte vazia
// monta a configuração somente a partir do ambiente.
func (ul *UniversalLoader) Load(ctx context.Context, source string) (*Config, error) {
	cfg := &Config{}
	if err := envloader.Load(cfg); err != nil {
		return nil, fmt.Errorf("falha ao aplicar defaults: %w", err)
	}

	if source != "" {
		rawData, err := ul.read(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("falha leitura config (%s): %w", source, err)
		}
		if err := yaml.Unmarshal(rawData, cfg); err != nil {
			return nil, fmt.Errorf("YAML malformado: %w", err)
		}
		if err := envloader.Override(cfg); err != nil {
			return nil, fmt.Errorf("falha ao aplicar variáveis de ambiente: %w", err)
		}
	}

	return ul.finish(ctx, cfg)
}

func (ul *UniversalLoader) read(ctx context.Context, source string) ([]byte, error) {
	switch {
	case strings.HasPrefix(source, "s3://"):
		if ul.s3 == nil {
			return nil, fmt.Errorf("cliente S3 não configurado")
		}
		return ul.loadFromS3(ctx, source)
	case strings.HasPrefix(source, "dynamodb://"):
		if ul.dynamo == nil {
			return nil, fmt.Errorf("cliente DynamoDB não configurado")
		}
		return ul.loadFromDynamoDB(ctx, source)
	default:
		// Suporta tanto "file://config.yaml" quanto apenas "config.yaml"
		return os.ReadFile(strings.TrimPrefix(source, "file://"))
	}
}

func (ul *UniversalLoader) loadFromS3(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("URL S3 inválida: %w", err)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	out, err := ul.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// loadFromDynamoDB lê o YAML de uma coluna: dynamodb://tabela/chave?col=config&pk=id
func (ul *UniversalLoader) loadFromDynamoDB(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("URL DynamoDB inválida: %w", err)
	}

	tableName := u.Host
	pkValue := strings.TrimPrefix(u.Path, "/")

	colName := u.Query().Get("col")
	if colName == "" {
		colName = "config"
	}
	pkName := u.Query().Get("pk")
	if pkName == "" {
		pkName = "id"
	}

	out, err := ul.dynamo.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &tableName,
		Key: map[string]types.AttributeValue{
			pkName: &types.AttributeValueMemberS{Value: pkValue},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("item não encontrado no DynamoDB")
	}

	var itemMap map[string]interface{}
	if err := attributevalue.UnmarshalMap(out.Item, &itemMap); err != nil {
		return nil, err
	}

	content, ok := itemMap[colName].(string)
	if !ok || content == "" {
		return nil, fmt.Errorf("coluna '%s' inválida ou vazia no DynamoDB", colName)
	}
	return []byte(content), nil
}

func (ul *UniversalLoader) finish(ctx context.Context, cfg *Config) (*Config, error) {
	if err := ul.injector.Inject(ctx, cfg); err != nil {
		return nil, fmt.Errorf("falha na injeção de variáveis: %w", err)
	}

	if ul.validator != nil {
		if err := ul.validator.Validate(cfg); err != nil {
			return nil, fmt.Errorf("validação da configuração falhou: %w", err)
		}
	}
	return cfg, nil
}
