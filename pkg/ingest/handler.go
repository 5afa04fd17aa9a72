// Package ingest registra na tabela de controle os documentos que chegam ao
// bucket de origem, recebendo notificações do S3 diretamente ou via SQS.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/raywall/fast-doc-pipeline/pkg/config"
	"github.com/raywall/fast-doc-pipeline/pkg/controltable"
	"github.com/raywall/fast-doc-pipeline/pkg/metrics"
	"github.com/raywall/fast-doc-pipeline/pkg/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const s3TestEvent = "s3:TestEvent"

// Registrar cria o registro PENDING de um documento.
type Registrar interface {
	Register(ctx context.Context, rec controltable.DocumentRecord) (*controltable.DocumentRecord, error)
}

// Statter consulta tamanho e etag de um objeto quando o evento não os traz.
type Statter interface {
	Stat(ctx context.Context, bucket, key string) (*storage.Object, error)
}

// WakeSender publica na fila que acorda os orquestradores.
type WakeSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Handler adapta eventos do S3/SQS para a tabela de controle.
type Handler struct {
	repo     Registrar
	source   config.SourceConf
	statter  Statter
	wake     WakeSender
	wakeURL  string
	metrics  *metrics.Recorder
	now      func() time.Time
	allowExt map[string]bool
}

type Option func(*Handler)

// WithStatter completa size/etag via HeadObject quando o evento vem sem eles.
func WithStatter(s Statter) Option {
	return func(h *Handler) { h.statter = s }
}

// WithWakeQueue envia uma mensagem para queueURL a cada invocação que registrou algo.
func WithWakeQueue(client WakeSender, queueURL string) Option {
	return func(h *Handler) {
		h.wake = client
		h.wakeURL = queueURL
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(h *Handler) { h.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler cria o handler de ingestão.
func NewHandler(repo Registrar, source config.SourceConf, opts ...Option) *Handler {
	h := &Handler{
		repo:     repo,
		source:   source,
		now:      time.Now,
		allowExt: make(map[string]bool, len(source.AllowedExtensions)),
	}
	for _, ext := range source.AllowedExtensions {
		h.allowExt[strings.ToLower(ext)] = true
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// result resume uma invocação.
type result struct {
	registered int
	duplicates int
	skipped    int
}

// HandleS3 processa uma notificação direta do S3. Um erro faz o Lambda
// reentregar o evento inteiro; os registros já criados viram duplicatas.
func (h *Handler) HandleS3(ctx context.Context, event events.S3Event) error {
	ctx, logger := h.withLogger(ctx)
	start := time.Now()

	var res result
	var errs []error
	for _, rec := range event.Records {
		if err := h.handleRecord(ctx, rec, &res); err != nil {
			errs = append(errs, err)
		}
	}
	h.sendWake(ctx, res.registered)

	logger.Info().
		Int("records", len(event.Records)).
		Int("registered", res.registered).
		Int("duplicates", res.duplicates).
		Int("skipped", res.skipped).
		Int("errors", len(errs)).
		Int64("latency_ms", time.Since(start).Milliseconds()).
		Msg("evento S3 processado")

	return errors.Join(errs...)
}

// HandleSQS processa notificações do S3 entregues via SQS (com ou sem envelope
// SNS). Mensagens com falha voltam em BatchItemFailures para reentrega parcial.
func (h *Handler) HandleSQS(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	ctx, logger := h.withLogger(ctx)
	start := time.Now()

	var res result
	var resp events.SQSEventResponse
	for _, msg := range event.Records {
		msgLog := logger.With().Str("message_id", msg.MessageId).Logger()

		s3Event, ok, err := decodeMessage(msg.Body)
		if err != nil {
			// Corpo ilegível não melhora com reentrega
			msgLog.Error().Err(err).Msg("mensagem SQS descartada")
			res.skipped++
			continue
		}
		if !ok {
			msgLog.Debug().Msg("evento de teste do S3 ignorado")
			res.skipped++
			continue
		}

		failed := false
		for _, rec := range s3Event.Records {
			if err := h.handleRecord(msgLog.WithContext(ctx), rec, &res); err != nil {
				msgLog.Error().Err(err).Msg("falha ao registrar documento")
				failed = true
			}
		}
		if failed {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: msg.MessageId,
			})
		}
	}
	h.sendWake(ctx, res.registered)

	logger.Info().
		Int("messages", len(event.Records)).
		Int("registered", res.registered).
		Int("duplicates", res.duplicates).
		Int("skipped", res.skipped).
		Int("failures", len(resp.BatchItemFailures)).
		Int64("latency_ms", time.Since(start).Milliseconds()).
		Msg("lote SQS processado")

	return resp, nil
}

func (h *Handler) withLogger(ctx context.Context) (context.Context, zerolog.Logger) {
	corrID := ""
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		corrID = lc.AwsRequestID
	}
	if corrID == "" {
		corrID = uuid.NewString()
	}
	logger := log.Ctx(ctx).With().Str("correlation_id", corrID).Logger()
	return logger.WithContext(ctx), logger
}

func (h *Handler) handleRecord(ctx context.Context, rec events.S3EventRecord, res *result) error {
	logger := log.Ctx(ctx)
	bucket := rec.S3.Bucket.Name
	key, err := objectKey(rec.S3.Object)
	if err != nil {
		res.skipped++
		logger.Warn().Err(err).Str("key", rec.S3.Object.Key).Msg("chave S3 inválida")
		return nil
	}

	if reason := h.skipReason(rec.EventName, bucket, key, rec.S3.Object.Size); reason != "" {
		res.skipped++
		h.metrics.Count(metrics.IngestSkipped, 1, "reason:"+reason)
		logger.Info().Str("bucket", bucket).Str("key", key).Str("reason", reason).Msg("objeto ignorado")
		return nil
	}

	size, etag := rec.S3.Object.Size, strings.Trim(rec.S3.Object.ETag, `"`)
	if (size == 0 || etag == "") && h.statter != nil {
		obj, err := h.statter.Stat(ctx, bucket, key)
		if err != nil {
			return fmt.Errorf("ingest: stat s3://%s/%s: %w", bucket, key, err)
		}
		size, etag = obj.Size, obj.ETag
		if h.source.MaxSizeBytes > 0 && size > h.source.MaxSizeBytes {
			res.skipped++
			h.metrics.Count(metrics.IngestSkipped, 1, "reason:too_large")
			logger.Info().Str("bucket", bucket).Str("key", key).Int64("size", size).Msg("objeto ignorado")
			return nil
		}
	}

	doc := controltable.NewRecord(bucket, key, size, etag, h.now())
	if _, err := h.repo.Register(ctx, doc); err != nil {
		if errors.Is(err, controltable.ErrAlreadyRegistered) {
			res.duplicates++
			logger.Debug().Str("document_id", doc.DocumentID).Msg("documento já registrado")
			return nil
		}
		return fmt.Errorf("ingest: register s3://%s/%s: %w", bucket, key, err)
	}

	res.registered++
	h.metrics.Count(metrics.DocumentsRegistered, 1)
	logger.Info().
		Str("document_id", doc.DocumentID).
		Str("source", doc.SourceURI()).
		Int64("size", size).
		Msg("documento registrado")
	return nil
}

// skipReason devolve vazio quando o objeto deve ser registrado.
func (h *Handler) skipReason(eventName, bucket, key string, size int64) string {
	if eventName != "" && !strings.HasPrefix(eventName, "ObjectCreated:") {
		return "event"
	}
	if strings.HasSuffix(key, "/") {
		return "folder"
	}
	if h.source.Bucket != "" && bucket != h.source.Bucket {
		return "bucket"
	}
	if !strings.HasPrefix(key, h.source.Prefix) {
		return "prefix"
	}
	if !h.allowExt[strings.ToLower(path.Ext(key))] {
		return "extension"
	}
	if h.source.MaxSizeBytes > 0 && size > h.source.MaxSizeBytes {
		return "too_large"
	}
	return ""
}

// sendWake é best-effort: sem a mensagem o orquestrador ainda encontra o
// documento no próximo poll.
func (h *Handler) sendWake(ctx context.Context, registered int) {
	if h.wake == nil || h.wakeURL == "" || registered == 0 {
		return
	}
	body, _ := json.Marshal(map[string]any{
		"registered": registered,
		"sent_at":    h.now().UTC().Format(controltable.TimeLayout),
	})
	if _, err := h.wake.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(h.wakeURL),
		MessageBody: aws.String(string(body)),
	}); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("falha ao enviar mensagem de wake")
	}
}

// objectKey usa a chave já decodificada pelo aws-lambda-go e recorre à
// decodificação manual (o S3 codifica espaço como '+').
func objectKey(obj events.S3Object) (string, error) {
	if obj.URLDecodedKey != "" {
		return obj.URLDecodedKey, nil
	}
	if obj.Key == "" {
		return "", errors.New("empty key")
	}
	return url.QueryUnescape(obj.Key)
}

// decodeMessage extrai o evento S3 do corpo da mensagem. ok falso indica o
// s3:TestEvent que o S3 envia ao configurar a notificação.
func decodeMessage(body string) (events.S3Event, bool, error) {
	var probe struct {
		Event   string `json:"Event"`
		Type    string `json:"Type"`
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		return events.S3Event{}, false, fmt.Errorf("ingest: decode message: %w", err)
	}
	if probe.Type == "Notification" && probe.Message != "" {
		return decodeMessage(probe.Message)
	}
	if probe.Event == s3TestEvent {
		return events.S3Event{}, false, nil
	}

	var event events.S3Event
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return events.S3Event{}, false, fmt.Errorf("ingest: decode s3 event: %w", err)
	}
	return event, true, nil
}
