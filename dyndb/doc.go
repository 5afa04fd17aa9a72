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
//
// Package dyndb fornece uma abstração genérica e fortemente tipada sobre o
// AWS DynamoDB Go SDK (v2).
//
// O pacote oferece a interface `Store[T]`, que simplifica as operações
// CRUD e Batch sem lidar diretamente com AttributeValue, e o `QueryBuilder[T]`
// para montar `Query` e `Scan` de forma fluente.
//
// Funcionalidades Principais:
//   - CRUD Tipado: `Get`, `Put`, `Delete` usando tipos Go nativos.
//   - Escritas Condicionais: `PutIfNotExists` e `Update` com ConditionExpression;
//     falhas de condição são devolvidas como `ErrConditionFailed`.
//   - Batch: `BatchWrite` e `BatchGet` com reenvio dos itens não processados.
//   - Paginação: `LastEvaluatedKey` convertida em token Base64.
//   - Mocks: `MockStore` e `MockDynamoClient` para testes unitários.
//
// Exemplo:
//
//	type Doc struct {
//		ID     string `dynamodbav:"id"`
//		Status string `dynamodbav:"status"`
//	}
//
//	store := dyndb.New(client, dyndb.TableConfig[Doc]{TableName: "doc-control", HashKey: "id"})
//
//	// Transição condicional PENDING -> IN_PROGRESS
//	cond := expression.Equal(expression.Name("status"), expression.Value("PENDING"))
//	upd := expression.Set(expression.Name("status"), expression.Value("IN_PROGRESS"))
//	doc, err := store.Update(ctx, "d1", nil, upd, &cond)
//	if errors.Is(err, dyndb.ErrConditionFailed) { /* outro worker venceu */ }
//
//	// Consulta paginada por índice
//	docs, token, err := store.Query().
//		Index("status-index").
//		KeyEqual("status", "PENDING").
//		Limit(50).
//		Exec(ctx)
//
// Sem `TableName` explícito a configuração é lida das variáveis
// DYNAMODB_TABLE_NAME, DYNAMODB_HASH_KEY, DYNAMODB_SORT_KEY e
// DYNAMODB_TTL_ATTRIBUTE.
package dyndb
