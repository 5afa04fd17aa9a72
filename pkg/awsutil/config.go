package awsutil

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

var (
	awsCfg  aws.Config
	awsOnce sync.Once
	awsErr  error
)

// GetAWSConfig carrega a configuração da AWS (env vars, profile, IAM role) de forma lazy-singleton.
// Um endpoint não vazio é aplicado a todos os clientes (LocalStack, DynamoDB local).
func GetAWSConfig(ctx context.Context, region, endpoint string) (aws.Config, error) {
	awsOnce.Do(func() {
		awsCfg, awsErr = config.LoadDefaultConfig(ctx, loadOptions(region, endpoint)...)
	})
	return awsCfg, awsErr
}

func loadOptions(region, endpoint string) []func(*config.LoadOptions) error {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(endpoint))
	}
	return opts
}
