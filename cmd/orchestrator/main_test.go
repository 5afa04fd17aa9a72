package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/raywall/fast-doc-pipeline/dyndb"
	"github.com/raywall/fast-doc-pipeline/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopS3 struct{}

func (nopS3) GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, errors.New("not used")
}

func (nopS3) HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return nil, errors.New("not used")
}

func stubDependencies(t *testing.T, runner func(context.Context, *engine.Engine) error) {
	t.Helper()
	origAWS, origClients, origRunner, origSignals := awsConfigLoader, clientsFactory, engineRunner, signalSource
	t.Cleanup(func() {
		awsConfigLoader, clientsFactory, engineRunner, signalSource = origAWS, origClients, origRunner, origSignals
	})

	awsConfigLoader = func(context.Context, string, string) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	}
	clientsFactory = func(aws.Config) engine.Clients {
		return engine.Clients{Dynamo: &dyndb.MockDynamoClient{}, S3: nopS3{}}
	}
	engineRunner = runner
	signalSource = func() (<-chan os.Signal, func()) {
		return make(chan os.Signal), func() {}
	}
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := `
version: "1.0"
service:
  name: "boot-test"
  instance_id: "boot-1"
  admin_port: 0
logging: {enabled: false}
orchestrator:
  workspace_dir: "` + filepath.Join(dir, "work") + `"
embedding:
  provider: openai
  api_key: "sk-test"
vector_store:
  provider: chromem
  chromem:
    path: "` + filepath.Join(dir, "chromem") + `"
    collection: docs
`
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_Bootstrap(t *testing.T) {
	called := false
	stubDependencies(t, func(ctx context.Context, e *engine.Engine) error {
		called = true
		assert.Equal(t, "boot-test", e.Config.Service.Name)
		assert.Equal(t, "boot-1", e.Owner)
		assert.Nil(t, e.Admin)
		return nil
	})

	require.NoError(t, run(context.Background(), writeConfig(t)))
	assert.True(t, called, "o loop do orquestrador não foi iniciado")
}

func TestRun_InvalidConfig(t *testing.T) {
	stubDependencies(t, func(context.Context, *engine.Engine) error {
		t.Fatal("engine should not run")
		return nil
	})

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking: {strategy: paragraph}\n"), 0o600))

	err := run(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Strategy")
}

func TestRun_AWSConfigError(t *testing.T) {
	stubDependencies(t, nil)
	awsConfigLoader = func(context.Context, string, string) (aws.Config, error) {
		return aws.Config{}, errors.New("no credentials")
	}

	err := run(context.Background(), "")
	assert.ErrorContains(t, err, "no credentials")
}
