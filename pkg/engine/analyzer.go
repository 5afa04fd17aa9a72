package engine

import (
	"fmt"
	"strings"

	"github.com/raywall/fast-doc-pipeline/pkg/config"
	"github.com/raywall/fast-doc-pipeline/pkg/rules"
)

// ValidationReport contém o resultado detalhado da análise.
type ValidationReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Dimensões conhecidas dos modelos de embedding suportados.
var knownDimensions = map[string]int{
	"text-embedding-3-small":       1536,
	"text-embedding-3-large":       3072,
	"text-embedding-ada-002":       1536,
	"amazon.titan-embed-text-v1":   1536,
	"amazon.titan-embed-text-v2:0": 1024,
}

// Analyze valida a configuração (estrutura, semântica e expressões CEL) e
// aponta combinações que funcionam mas provavelmente não são intencionais.
func Analyze(cfg *config.Config) (*ValidationReport, error) {
	report := &ValidationReport{
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
	}

	rm, err := rules.NewRuleManager()
	if err != nil {
		return nil, fmt.Errorf("falha interna ao iniciar analisador de regras: %w", err)
	}

	if err := config.NewValidator(rm).Validate(cfg); err != nil {
		report.Errors = append(report.Errors, splitValidation(err.Error())...)
	}

	c := cfg.Chunking
	if c.Strategy == "fixed" && c.Overlap >= c.Size {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("chunking.overlap (%d) >= chunking.size (%d): será usado size/4", c.Overlap, c.Size))
	}

	emb := cfg.Embedding
	if dim, ok := knownDimensions[emb.Model]; ok && dim != emb.Dimension {
		report.Errors = append(report.Errors,
			fmt.Sprintf("embedding.dimension (%d) difere da dimensão do modelo %s (%d)", emb.Dimension, emb.Model, dim))
	}
	if emb.Provider == "openai" && emb.APIKey == "" {
		report.Warnings = append(report.Warnings, "embedding.api_key vazio para o provider openai")
	}
	if emb.Provider == "bedrock" && !strings.HasPrefix(emb.Model, "amazon.titan-embed") {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("embedding.model %s não é um modelo Titan; o corpo da requisição pode ser incompatível", emb.Model))
	}

	if cfg.VectorStore.Provider == "chromem" && cfg.Service.Runtime != "local" {
		report.Warnings = append(report.Warnings, "chromem grava em disco local; instâncias diferentes não compartilham a coleção")
	}

	o := cfg.Orchestrator
	if !o.ReleaseOnShutdown {
		report.Warnings = append(report.Warnings,
			"orchestrator.release_on_shutdown=false: documentos interrompidos ficam IN_PROGRESS até ação do operador")
	}
	if o.StageTimeout == 0 {
		report.Warnings = append(report.Warnings, "orchestrator.stage_timeout=0: estágios sem limite de tempo")
	}
	if o.WakeQueueURL == "" {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("sem wake_queue_url: novos documentos aguardam até %s", o.PollInterval))
	}

	if cfg.ControlTable.TTLDays == 0 {
		report.Warnings = append(report.Warnings, "control_table.ttl_days=0: registros terminais nunca expiram")
	}

	if len(report.Errors) > 0 {
		report.Valid = false
	}
	return report, nil
}

// splitValidation separa a lista de erros estruturais em uma linha por campo.
// Os demais erros (inclusive os do CEL, que têm várias linhas) ficam inteiros.
func splitValidation(msg string) []string {
	header, list, ok := strings.Cut(msg, ":\n- ")
	if !ok || header != "erros de validação estrutural" {
		return []string{msg}
	}
	return strings.Split(list, "\n- ")
}
