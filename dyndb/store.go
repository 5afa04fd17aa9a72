package dyndb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/raywall/fast-doc-pipeline/envloader"
)

const (
	defaultTTL       = 30 * 24 * time.Hour
	maxBatchWrite    = 25
	maxBatchGet      = 100
	maxBatchAttempts = 5
)

type dynamoStore[T any] struct {
	client DynamoDBClient
	cfg    TableConfig[T]
}

// New cria um store reutilizável. Sem TableName explícito a configuração é
// lida das variáveis DYNAMODB_*.
func New[T any](client DynamoDBClient, cfg TableConfig[T]) Store[T] {
	if cfg.TableName == "" {
		_ = envloader.Load(&cfg)
	}

	return &dynamoStore[T]{
		client: client,
		cfg:    cfg,
	}
}

func (s *dynamoStore[T]) key(hashKey, sortKey any) map[string]types.AttributeValue {
	key := map[string]types.AttributeValue{
		s.cfg.HashKey: attr(hashKey),
	}
	if s.cfg.SortKey != "" && sortKey != nil {
		key[s.cfg.SortKey] = attr(sortKey)
	}
	return key
}

// Get item por chave primária
func (s *dynamoStore[T]) Get(ctx context.Context, hashKey, sortKey any) (*T, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.cfg.TableName),
		Key:            s.key(hashKey, sortKey),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamostore: get failed: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var item T
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("dynamostore: unmarshal failed: %w", err)
	}
	return &item, nil
}

// Put item (upsert)
func (s *dynamoStore[T]) Put(ctx context.Context, item T) error {
	return s.put(ctx, item, nil)
}

// PutIfNotExists grava o item com a condição attribute_not_exists(hashKey).
func (s *dynamoStore[T]) PutIfNotExists(ctx context.Context, item T) error {
	cond := expression.AttributeNotExists(expression.Name(s.cfg.HashKey))
	return s.put(ctx, item, &cond)
}

func (s *dynamoStore[T]) put(ctx context.Context, item T, cond *expression.ConditionBuilder) error {
	av, err := s.marshal(item)
	if err != nil {
		return err
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.cfg.TableName),
		Item:      av,
	}
	if cond != nil {
		expr, err := expression.NewBuilder().WithCondition(*cond).Build()
		if err != nil {
			return fmt.Errorf("dynamostore: build condition failed: %w", err)
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	if _, err = s.client.PutItem(ctx, input); err != nil {
		return wrapWriteErr("put", err)
	}
	return nil
}

// Update executa UpdateItem retornando ALL_NEW.
func (s *dynamoStore[T]) Update(ctx context.Context, hashKey, sortKey any, update expression.UpdateBuilder, cond *expression.ConditionBuilder) (*T, error) {
	builder := expression.NewBuilder().WithUpdate(update)
	if cond != nil {
		builder = builder.WithCondition(*cond)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("dynamostore: build update failed: %w", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.cfg.TableName),
		Key:                       s.key(hashKey, sortKey),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, wrapWriteErr("update", err)
	}

	var item T
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return nil, fmt.Errorf("dynamostore: unmarshal failed: %w", err)
	}
	return &item, nil
}

// Delete item
func (s *dynamoStore[T]) Delete(ctx context.Context, hashKey, sortKey any) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.cfg.TableName),
		Key:       s.key(hashKey, sortKey),
	})
	if err != nil {
		return fmt.Errorf("dynamostore: delete failed: %w", err)
	}
	return nil
}

// BatchWrite: puts + deletes (máx 25 por chamada)
func (s *dynamoStore[T]) BatchWrite(ctx context.Context, puts []T, deletes [][2]any) error {
	var writeRequests []types.WriteRequest

	for _, item := range puts {
		itemMap, err := s.marshal(item)
		if err != nil {
			return fmt.Errorf("batchwrite: %w", err)
		}
		writeRequests = append(writeRequests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: itemMap},
		})
	}

	for _, k := range deletes {
		writeRequests = append(writeRequests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: s.key(k[0], k[1])},
		})
	}

	for i := 0; i < len(writeRequests); i += maxBatchWrite {
		end := min(i+maxBatchWrite, len(writeRequests))
		pending := map[string][]types.WriteRequest{
			s.cfg.TableName: writeRequests[i:end],
		}

		// UnprocessedItems são reenviados com backoff exponencial
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt == maxBatchAttempts {
				return fmt.Errorf("batchwrite: %d items left unprocessed", len(pending[s.cfg.TableName]))
			}
			if attempt > 0 {
				if err := backoff(ctx, attempt); err != nil {
					return err
				}
			}
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("batchwrite failed: %w", err)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

// BatchGet: até 100 chaves por chamada
func (s *dynamoStore[T]) BatchGet(ctx context.Context, keys [][2]any) ([]T, error) {
	keysToGet := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		keysToGet = append(keysToGet, s.key(k[0], k[1]))
	}

	var results []T

	for i := 0; i < len(keysToGet); i += maxBatchGet {
		end := min(i+maxBatchGet, len(keysToGet))
		pending := map[string]types.KeysAndAttributes{
			s.cfg.TableName: {
				Keys:           keysToGet[i:end],
				ConsistentRead: aws.Bool(true),
			},
		}

		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt == maxBatchAttempts {
				return nil, fmt.Errorf("batchget: keys left unprocessed after %d attempts", attempt)
			}
			if attempt > 0 {
				if err := backoff(ctx, attempt); err != nil {
					return nil, err
				}
			}
			resp, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: pending})
			if err != nil {
				return nil, fmt.Errorf("batchget failed: %w", err)
			}

			for _, item := range resp.Responses[s.cfg.TableName] {
				var t T
				if err := attributevalue.UnmarshalMap(item, &t); err != nil {
					return nil, err
				}
				results = append(results, t)
			}
			pending = resp.UnprocessedKeys
		}
	}

	return results, nil
}

func (s *dynamoStore[T]) marshal(item T) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("dynamostore: marshal failed: %w", err)
	}

	// TTL automático de 30 dias quando o atributo está configurado e ausente
	if s.cfg.TTLAttribute != "" {
		if _, ok := av[s.cfg.TTLAttribute]; !ok {
			av[s.cfg.TTLAttribute] = attr(time.Now().Add(defaultTTL).Unix())
		}
	}
	return av, nil
}

// wrapWriteErr traduz ConditionalCheckFailedException para ErrConditionFailed.
func wrapWriteErr(op string, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("dynamostore: %s: %w", op, ErrConditionFailed)
	}
	return fmt.Errorf("dynamostore: %s failed: %w", op, err)
}

func backoff(ctx context.Context, attempt int) error {
	wait := time.Duration(50<<attempt) * time.Millisecond
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// attr converte qualquer valor para types.AttributeValue
func attr(v any) types.AttributeValue {
	if v == nil {
		return &types.AttributeValueMemberNULL{Value: true}
	}
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return &types.AttributeValueMemberNULL{Value: true}
	}
	return av
}
