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

package controltable

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"
)

// Status é o estado de um documento na tabela de controle.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// TimeLayout tem largura fixa para que created_at ordene lexicograficamente no GSI.
const TimeLayout = "2006-01-02T15:04:05.000Z"

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus aceita o nome do status sem diferenciar maiúsculas.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("status inválido: %q", s)
	}
	return st, nil
}

// DocumentRecord é o item da tabela de controle.
type DocumentRecord struct {
	DocumentID      string   `dynamodbav:"document_id" json:"document_id"`
	Status          Status   `dynamodbav:"status" json:"status"`
	Bucket          string   `dynamodbav:"s3_bucket" json:"s3_bucket"`
	Key             string   `dynamodbav:"s3_key" json:"s3_key"`
	FileName        string   `dynamodbav:"file_name,omitempty" json:"file_name,omitempty"`
	SizeBytes       int64    `dynamodbav:"size_bytes,omitempty" json:"size_bytes,omitempty"`
	ETag            string   `dynamodbav:"etag,omitempty" json:"etag,omitempty"`
	CreatedAt       string   `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt       string   `dynamodbav:"updated_at" json:"updated_at"`
	ClaimedAt       string   `dynamodbav:"claimed_at,omitempty" json:"claimed_at,omitempty"`
	ClaimedBy       string   `dynamodbav:"claimed_by,omitempty" json:"claimed_by,omitempty"`
	CompletedAt     string   `dynamodbav:"completed_at,omitempty" json:"completed_at,omitempty"`
	CurrentStage    string   `dynamodbav:"current_stage,omitempty" json:"current_stage,omitempty"`
	StagesCompleted []string `dynamodbav:"stages_completed,omitempty" json:"stages_completed,omitempty"`
	Attempts        int      `dynamodbav:"attempts" json:"attempts"`
	ChunkCount      int      `dynamodbav:"chunk_count,omitempty" json:"chunk_count,omitempty"`
	VectorCount     int      `dynamodbav:"vector_count,omitempty" json:"vector_count,omitempty"`
	ErrorMessage    string   `dynamodbav:"error_message,omitempty" json:"error_message,omitempty"`
	ErrorStage      string   `dynamodbav:"error_stage,omitempty" json:"error_stage,omitempty"`
	ExpiresAt       int64    `dynamodbav:"expires_at,omitempty" json:"-"`
}

// SourceURI devolve s3://bucket/key.
func (r DocumentRecord) SourceURI() string {
	return "s3://" + r.Bucket + "/" + r.Key
}

// NewRecord monta um registro PENDING para o objeto.
func NewRecord(bucket, key string, size int64, etag string, now time.Time) DocumentRecord {
	ts := now.UTC().Format(TimeLayout)
	return DocumentRecord{
		DocumentID: DocumentIDFor(bucket, key),
		Status:     StatusPending,
		Bucket:     bucket,
		Key:        key,
		FileName:   path.Base(key),
		SizeBytes:  size,
		ETag:       etag,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
}

// DocumentIDFor gera um id determinístico para bucket/key, de modo que eventos
// S3 reentregues caiam sempre no mesmo registro.
func DocumentIDFor(bucket, key string) string {
	sum := sha256.Sum256([]byte(bucket + "/" + key))
	return hex.EncodeToString(sum[:])[:32]
}
