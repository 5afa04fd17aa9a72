package main

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubStart(t *testing.T) *interface{} {
	t.Helper()
	origStart, origAWS := lambdaStarter, awsConfigLoader
	t.Cleanup(func() { lambdaStarter, awsConfigLoader = origStart, origAWS })

	var got interface{}
	lambdaStarter = func(h interface{}) { got = h }
	awsConfigLoader = func(context.Context, string, string) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	}
	t.Setenv("LOG_ENABLED", "false")
	return &got
}

func TestRun_SelectsS3Handler(t *testing.T) {
	got := stubStart(t)

	require.NoError(t, run(context.Background()))
	_, ok := (*got).(func(context.Context, events.S3Event) error)
	assert.True(t, ok, "handler S3 esperado, recebido %T", *got)
}

func TestRun_SelectsSQSHandler(t *testing.T) {
	got := stubStart(t)
	t.Setenv("INGEST_EVENT_SOURCE", "sqs")
	t.Setenv("WAKE_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/123/wake")
	t.Setenv("INGEST_STAT_OBJECTS", "true")

	require.NoError(t, run(context.Background()))
	_, ok := (*got).(func(context.Context, events.SQSEvent) (events.SQSEventResponse, error))
	assert.True(t, ok, "handler SQS esperado, recebido %T", *got)
}

func TestRun_InvalidEventSource(t *testing.T) {
	got := stubStart(t)
	t.Setenv("INGEST_EVENT_SOURCE", "kinesis")

	err := run(context.Background())
	assert.ErrorContains(t, err, "EventSource")
	assert.Nil(t, *got)
}
