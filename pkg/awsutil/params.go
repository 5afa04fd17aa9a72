package awsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Interfaces para abstrair o SDK da AWS (Permite Mocking)
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ParamStore resolve valores no Parameter Store e no Secrets Manager.
type ParamStore struct {
	ssm     SSMClient
	secrets SecretsClient
}

// NewParamStore cria o resolvedor a partir de clientes já construídos.
func NewParamStore(ssmClient SSMClient, secretsClient SecretsClient) *ParamStore {
	return &ParamStore{ssm: ssmClient, secrets: secretsClient}
}

// NewParamStoreFromConfig inicializa os clientes reais.
func NewParamStoreFromConfig(cfg aws.Config) *ParamStore {
	return NewParamStore(ssm.NewFromConfig(cfg), secretsmanager.NewFromConfig(cfg))
}

// Parameter lê um parâmetro do SSM, sempre com decrypt.
func (p *ParamStore) Parameter(ctx context.Context, path string) (string, error) {
	out, err := p.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("erro no SSM GetParameter: %w", err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("parâmetro %s sem valor", path)
	}
	return *out.Parameter.Value, nil
}

// Secret lê um segredo. O formato "id#campo" extrai um campo de um segredo JSON.
func (p *ParamStore) Secret(ctx context.Context, ref string) (string, error) {
	secretID, field, _ := strings.Cut(ref, "#")

	out, err := p.secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("erro no SecretsManager: %w", err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("segredo %s sem SecretString", secretID)
	}

	val := *out.SecretString
	if field == "" {
		return val, nil
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return "", fmt.Errorf("segredo %s não é JSON: %w", secretID, err)
	}
	v, ok := data[field]
	if !ok {
		return "", fmt.Errorf("campo %q ausente no segredo %s", field, secretID)
	}
	return fmt.Sprintf("%v", v), nil
}
