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
// Package fastdocpipeline orquestra a conversão de documentos armazenados no S3
// em vetores pesquisáveis, usando uma tabela DynamoDB como plano de controle.
//
// Visão Geral:
// Cada documento registrado na tabela de controle passa por cinco estágios
// (extract, chunk, enrich, embed, load). Várias instâncias do orquestrador
// disputam os documentos PENDING por escrita condicional, de modo que cada
// documento é processado por um único dono por vez.
//
// Sub-Pacotes Principais:
//
// 1. envloader e pkg/config:
//   - Carregamento de configuração via tags "env"/"envDefault" e YAML local, S3 ou DynamoDB.
//   - Injeção de valores do SSM Parameter Store e do Secrets Manager.
//   - Validação estrutural (validator) e semântica (CEL).
//
// 2. dyndb e pkg/controltable:
//   - Store[T] tipado sobre DynamoDB com QueryBuilder paginado.
//   - Máquina de estados PENDING -> IN_PROGRESS -> COMPLETED | FAILED com claim condicional.
//
// 3. pkg/pipeline e estágios:
//   - pkg/extract (PDF, Markdown, texto), pkg/chunk, pkg/enrich, pkg/embed e pkg/vectorstore.
//   - Workspace isolado por documento (pkg/workspace).
//
// 4. pkg/orchestrator, pkg/ingest e pkg/transport:
//   - Loop de claim com backoff e despertar via SQS.
//   - Lambda que registra objetos novos a partir de eventos S3/SQS.
//   - API administrativa HTTP para consulta e reprocessamento.
//
// Comandos:
//
//	cmd/orchestrator  processo de longa duração que executa o pipeline
//	cmd/ingest        função Lambda de registro
//	cmd/docctl        CLI operacional (submit, status, list, retry, validate)
//
// Exemplo de Início Rápido:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"time"
//
//		"github.com/aws/aws-sdk-go-v2/service/dynamodb"
//		"github.com/raywall/fast-doc-pipeline/envloader"
//		"github.com/raywall/fast-doc-pipeline/pkg/awsutil"
//		"github.com/raywall/fast-doc-pipeline/pkg/config"
//		"github.com/raywall/fast-doc-pipeline/pkg/controltable"
//	)
//
//	func main() {
//		ctx := context.Background()
//
//		var cfg config.Config
//		if err := envloader.Load(&cfg); err != nil {
//			log.Fatalf("Erro ao carregar env: %v", err)
//		}
//
//		awsCfg, err := awsutil.GetAWSConfig(ctx, cfg.AWS.Region, cfg.AWS.Endpoint)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		repo := controltable.NewDynamoRepository(dynamodb.NewFromConfig(awsCfg), cfg.ControlTable)
//		rec, err := repo.Register(ctx, controltable.NewRecord("docs", "manual/guia.pdf", 0, "", time.Now()))
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("registrado %s (%s)", rec.DocumentID, rec.Status)
//	}
package fastdocpipeline
