package dyndb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Query inicia uma Query
func (s *dynamoStore[T]) Query() *QueryBuilder[T] {
	return &QueryBuilder[T]{
		store:       s,
		scanForward: aws.Bool(true),
	}
}

// Scan inicia um Scan
func (s *dynamoStore[T]) Scan() *QueryBuilder[T] {
	return &QueryBuilder[T]{
		store:  s,
		isScan: true,
	}
}

func (qb *QueryBuilder[T]) Index(name string) *QueryBuilder[T] {
	qb.indexName = aws.String(name)
	return qb
}

func (qb *QueryBuilder[T]) KeyEqual(key string, value any) *QueryBuilder[T] {
	return qb.andKey(expression.KeyEqual(expression.Key(key), expression.Value(value)))
}

func (qb *QueryBuilder[T]) KeyBeginsWith(key, prefix string) *QueryBuilder[T] {
	return qb.andKey(expression.Key(key).BeginsWith(prefix))
}

// KeyLessThan restringe a sort key (ex: created_at < limite).
func (qb *QueryBuilder[T]) KeyLessThan(key string, value any) *QueryBuilder[T] {
	return qb.andKey(expression.KeyLessThan(expression.Key(key), expression.Value(value)))
}

func (qb *QueryBuilder[T]) FilterEqual(field string, value any) *QueryBuilder[T] {
	return qb.andFilter(expression.Equal(expression.Name(field), expression.Value(value)))
}

func (qb *QueryBuilder[T]) FilterContains(field string, value any) *QueryBuilder[T] {
	return qb.andFilter(expression.Contains(expression.Name(field), value))
}

// Project limita os atributos retornados.
func (qb *QueryBuilder[T]) Project(fields ...string) *QueryBuilder[T] {
	if len(fields) == 0 {
		return qb
	}
	proj := expression.NamesList(expression.Name(fields[0]))
	for _, f := range fields[1:] {
		proj = proj.AddNames(expression.Name(f))
	}
	qb.projection = &proj
	return qb
}

func (qb *QueryBuilder[T]) Limit(n int32) *QueryBuilder[T] {
	qb.limit = &n
	return qb
}

func (qb *QueryBuilder[T]) ScanForward(forward bool) *QueryBuilder[T] {
	qb.scanForward = &forward
	return qb
}

// LastKey continua a paginação a partir de um token devolvido por Exec.
func (qb *QueryBuilder[T]) LastKey(token string) *QueryBuilder[T] {
	if token == "" {
		return qb
	}
	if key, err := decodeToken(token); err == nil {
		qb.lastKey = key
	}
	return qb
}

func (qb *QueryBuilder[T]) andKey(cond expression.KeyConditionBuilder) *QueryBuilder[T] {
	if qb.keyCond == nil {
		qb.keyCond = &cond
	} else {
		tmp := qb.keyCond.And(cond)
		qb.keyCond = &tmp
	}
	return qb
}

func (qb *QueryBuilder[T]) andFilter(cond expression.ConditionBuilder) *QueryBuilder[T] {
	if qb.filterCond == nil {
		qb.filterCond = &cond
	} else {
		tmp := qb.filterCond.And(cond)
		qb.filterCond = &tmp
	}
	return qb
}

// Exec executa a consulta e devolve os itens e o token da próxima página.
func (qb *QueryBuilder[T]) Exec(ctx context.Context) ([]T, string, error) {
	builder := expression.NewBuilder()
	hasExpr := false

	if qb.keyCond != nil {
		builder = builder.WithKeyCondition(*qb.keyCond)
		hasExpr = true
	}
	if qb.filterCond != nil {
		builder = builder.WithFilter(*qb.filterCond)
		hasExpr = true
	}
	if qb.projection != nil {
		builder = builder.WithProjection(*qb.projection)
		hasExpr = true
	}

	// Build falha sem nenhuma expressão (Scan sem filtro é válido)
	var expr expression.Expression
	if hasExpr {
		var err error
		if expr, err = builder.Build(); err != nil {
			return nil, "", fmt.Errorf("dynamostore: build expression failed: %w", err)
		}
	}

	if qb.isScan || qb.keyCond == nil {
		return qb.execScan(ctx, expr)
	}
	return qb.execQuery(ctx, expr)
}

func (qb *QueryBuilder[T]) execQuery(ctx context.Context, expr expression.Expression) ([]T, string, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(qb.store.cfg.TableName),
		IndexName:                 qb.indexName,
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     qb.limit,
		ScanIndexForward:          qb.scanForward,
		ExclusiveStartKey:         qb.lastKey,
	}

	out, err := qb.store.client.Query(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("dynamostore: query failed: %w", err)
	}
	return unmarshalResults[T](out.Items, out.LastEvaluatedKey)
}

func (qb *QueryBuilder[T]) execScan(ctx context.Context, expr expression.Expression) ([]T, string, error) {
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(qb.store.cfg.TableName),
		IndexName:                 qb.indexName,
		FilterExpression:          expr.Filter(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     qb.limit,
		ExclusiveStartKey:         qb.lastKey,
	}

	out, err := qb.store.client.Scan(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("dynamostore: scan failed: %w", err)
	}
	return unmarshalResults[T](out.Items, out.LastEvaluatedKey)
}

func unmarshalResults[T any](
	items []map[string]types.AttributeValue,
	lastKey map[string]types.AttributeValue,
) ([]T, string, error) {
	result := make([]T, 0, len(items))
	for _, item := range items {
		var t T
		if err := attributevalue.UnmarshalMap(item, &t); err != nil {
			return nil, "", fmt.Errorf("dynamostore: unmarshal failed: %w", err)
		}
		result = append(result, t)
	}

	token, err := encodeToken(lastKey)
	if err != nil {
		return nil, "", err
	}
	return result, token, nil
}

// Os tokens de paginação carregam a LastEvaluatedKey como um mapa simples
// serializado em JSON. AttributeValue é uma interface e não sobrevive a um
// json.Unmarshal direto.
func encodeToken(lastKey map[string]types.AttributeValue) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}
	var plain map[string]any
	if err := attributevalue.UnmarshalMap(lastKey, &plain); err != nil {
		return "", fmt.Errorf("dynamostore: encode token failed: %w", err)
	}
	b, err := json.Marshal(plain)
	if err != nil {
		return "", fmt.Errorf("dynamostore: encode token failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func decodeToken(token string) (map[string]types.AttributeValue, error) {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var plain map[string]any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, err
	}
	return attributevalue.MarshalMap(plain)
}
