// Copyright 2025 Raywall Malheiros de Souza
// Licensed under the Mozilla Public License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.mozilla.org/en-US/MPL/2.0/
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dyndb

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	// ErrNotFound – erro padrão quando o item não existe
	ErrNotFound = errors.New("dyndb: item not found")
	// ErrConditionFailed – a ConditionExpression de uma escrita foi avaliada como falsa
	ErrConditionFailed = errors.New("dyndb: condition check failed")
)

// DynamoDBClient interface para abstrair o cliente DynamoDB
type DynamoDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store: interface principal (genérica)
type Store[T any] interface {
	Get(ctx context.Context, hashKey, sortKey any) (*T, error)
	Put(ctx context.Context, item T) error
	// PutIfNotExists grava o item somente se a chave ainda não existir.
	PutIfNotExists(ctx context.Context, item T) error
	// Update aplica uma UpdateExpression, opcionalmente condicionada, e
	// devolve o item completo após a alteração.
	Update(ctx context.Context, hashKey, sortKey any, update expression.UpdateBuilder, cond *expression.ConditionBuilder) (*T, error)
	Delete(ctx context.Context, hashKey, sortKey any) error

	BatchWrite(ctx context.Context, puts []T, deletes [][2]any) error
	BatchGet(ctx context.Context, keys [][2]any) ([]T, error)

	Query() *QueryBuilder[T]
	Scan() *QueryBuilder[T]
}

// TableConfig: configuração da tabela
type TableConfig[T any] struct {
	TableName    string `env:"DYNAMODB_TABLE_NAME"`
	HashKey      string `env:"DYNAMODB_HASH_KEY" envDefault:"id"`
	SortKey      string `env:"DYNAMODB_SORT_KEY"`      // opcional
	TTLAttribute string `env:"DYNAMODB_TTL_ATTRIBUTE"` // opcional
}

// QueryBuilder: o builder fluente
type QueryBuilder[T any] struct {
	store       *dynamoStore[T]
	keyCond     *expression.KeyConditionBuilder
	filterCond  *expression.ConditionBuilder
	projection  *expression.ProjectionBuilder
	indexName   *string
	limit       *int32
	lastKey     map[string]types.AttributeValue
	scanForward *bool
	isScan      bool
}
