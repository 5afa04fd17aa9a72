package awsutil

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MockSSM struct {
	GetParameterFunc func(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

func (m *MockSSM) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return m.GetParameterFunc(ctx, params, optFns...)
}

type MockSecrets struct {
	GetSecretValueFunc func(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

func (m *MockSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return m.GetSecretValueFunc(ctx, params, optFns...)
}

func secretReturning(s string) *MockSecrets {
	return &MockSecrets{
		GetSecretValueFunc: func(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
			return &secretsmanager.GetSecretValueOutput{SecretString: &s}, nil
		},
	}
}

// --- Testes ---

func TestParamStore_Parameter(t *testing.T) {
	t.Run("Sucesso", func(t *testing.T) {
		mockVal := "postgres://db"
		store := NewParamStore(&MockSSM{
			GetParameterFunc: func(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
				assert.Equal(t, "/docpipe/dsn", *params.Name)
				assert.True(t, *params.WithDecryption)
				return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: &mockVal}}, nil
			},
		}, nil)

		res, err := store.Parameter(context.Background(), "/docpipe/dsn")
		require.NoError(t, err)
		assert.Equal(t, mockVal, res)
	})

	t.Run("Erro na AWS", func(t *testing.T) {
		store := NewParamStore(&MockSSM{
			GetParameterFunc: func(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
				return nil, errors.New("AWS down")
			},
		}, nil)

		_, err := store.Parameter(context.Background(), "/x")
		assert.ErrorContains(t, err, "AWS down")
	})
}

func TestParamStore_Secret(t *testing.T) {
	t.Run("String pura", func(t *testing.T) {
		store := NewParamStore(nil, secretReturning("just-a-password"))
		res, err := store.Secret(context.Background(), "my-secret")
		require.NoError(t, err)
		assert.Equal(t, "just-a-password", res)
	})

	t.Run("Campo JSON", func(t *testing.T) {
		store := NewParamStore(nil, secretReturning(`{"api_key": "12345", "port": 5432}`))

		res, err := store.Secret(context.Background(), "my-secret#api_key")
		require.NoError(t, err)
		assert.Equal(t, "12345", res)

		res, err = store.Secret(context.Background(), "my-secret#port")
		require.NoError(t, err)
		assert.Equal(t, "5432", res)
	})

	t.Run("Campo ausente", func(t *testing.T) {
		store := NewParamStore(nil, secretReturning(`{"api_key": "12345"}`))
		_, err := store.Secret(context.Background(), "my-secret#missing")
		assert.ErrorContains(t, err, "ausente")
	})

	t.Run("Campo em segredo não JSON", func(t *testing.T) {
		store := NewParamStore(nil, secretReturning("plain"))
		_, err := store.Secret(context.Background(), "my-secret#field")
		assert.Error(t, err)
	})
}

func TestLoadOptions(t *testing.T) {
	assert.Len(t, loadOptions("", ""), 0)
	assert.Len(t, loadOptions("sa-east-1", ""), 1)
	assert.Len(t, loadOptions("sa-east-1", "http://localhost:4566"), 2)
}
