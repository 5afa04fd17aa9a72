package engine

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/raywall/fast-doc-pipeline/dyndb"
	"github.com/raywall/fast-doc-pipeline/pkg/embed"
	"github.com/raywall/fast-doc-pipeline/pkg/orchestrator"
	"github.com/raywall/fast-doc-pipeline/pkg/storage"
)

// Clients agrupa os clientes externos usados pelo pipeline. Em testes cada
// campo pode ser substituído por um mock.
type Clients struct {
	Dynamo  dyndb.DynamoDBClient
	S3      storage.S3Client
	SQS     orchestrator.SQSClient
	Bedrock embed.BedrockClient
	// Redis nil com cache habilitado cria um cliente a partir de embedding.cache.
	Redis embed.RedisClient
}

// NewClients cria os clientes reais a partir da configuração AWS carregada.
func NewClients(cfg aws.Config) Clients {
	return Clients{
		Dynamo:  dynamodb.NewFromConfig(cfg),
		S3:      s3.NewFromConfig(cfg),
		SQS:     sqs.NewFromConfig(cfg),
		Bedrock: bedrockruntime.NewFromConfig(cfg),
	}
}
