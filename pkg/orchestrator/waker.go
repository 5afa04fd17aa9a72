package orchestrator

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
)

// SQSClient define a interface necessária para o waker (permite Mocking)
type SQSClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Waker escuta a fila de wake-up e antecipa o poll a cada mensagem.
type Waker struct {
	client     SQSClient
	queueURL   string
	notify     func()
	retryDelay time.Duration
	logger     zerolog.Logger
}

func NewWaker(client SQSClient, queueURL string, notify func(), log zerolog.Logger) *Waker {
	return &Waker{
		client:     client,
		queueURL:   queueURL,
		notify:     notify,
		retryDelay: 5 * time.Second,
		logger:     log.With().Str("component", "sqs_waker").Logger(),
	}
}

// Start inicia o long polling (bloqueante) até ctx ser cancelado.
func (w *Waker) Start(ctx context.Context) {
	if w.queueURL == "" {
		w.logger.Warn().Msg("URL da fila de wake-up não configurada. Apenas polling periódico.")
		return
	}

	w.logger.Info().Str("queue", w.queueURL).Msg("monitorando fila SQS de wake-up")

	for ctx.Err() == nil {
		out, err := w.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(w.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20, // Long polling
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logger.Error().Err(err).Dur("retry_in", w.retryDelay).Msg("erro no SQS")
			select {
			case <-ctx.Done():
			case <-time.After(w.retryDelay):
			}
			continue
		}

		if len(out.Messages) == 0 {
			continue
		}

		w.logger.Debug().Int("messages", len(out.Messages)).Msg("wake-up recebido")
		w.notify()

		for _, msg := range out.Messages {
			if _, err := w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(w.queueURL),
				ReceiptHandle: msg.ReceiptHandle,
			}); err != nil {
				w.logger.Warn().Err(err).Msg("falha ao remover mensagem de wake-up")
			}
		}
	}

	w.logger.Info().Msg("parando monitoramento SQS")
}
