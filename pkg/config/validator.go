package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var sqlIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// ExprChecker compila expressões CEL sem avaliá-las.
type ExprChecker interface {
	Check(expr string) error
}

type ConfigValidator struct {
	validate *validator.Validate
	exprs    ExprChecker
}

// NewValidator cria uma nova instância do validador. O ExprChecker é opcional;
// sem ele o filtro de enriquecimento não é compilado na validação.
func NewValidator(exprs ExprChecker) *ConfigValidator {
	v := validator.New()
	_ = v.RegisterValidation("sql_identifier", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "" || sqlIdentifier.MatchString(fl.Field().String())
	})

	return &ConfigValidator{
		validate: v,
		exprs:    exprs,
	}
}

// Validate realiza validações estruturais (tags) e semânticas (lógica)
func (cv *ConfigValidator) Validate(cfg *Config) error {
	// 1. Validação Estrutural (Tags do struct: required, oneof, etc)
	if err := cv.validate.Struct(cfg); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMsgs []string
			for _, e := range validationErrors {
				errMsgs = append(errMsgs, fmt.Sprintf("Campo '%s' falhou na regra '%s'", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("erros de validação estrutural:\n- %s", strings.Join(errMsgs, "\n- "))
		}
		return fmt.Errorf("erro de validação estrutural: %w", err)
	}

	// 2. Validação Semântica (Regras de negócio da configuração)
	if err := cv.validateSemantics(cfg); err != nil {
		return fmt.Errorf("erro de validação semântica: %w", err)
	}

	return nil
}

func (cv *ConfigValidator) validateSemantics(cfg *Config) error {
	o := cfg.Orchestrator
	if o.SleepStep > o.PollInterval {
		return fmt.Errorf("orchestrator.sleep_step (%s) maior que poll_interval (%s)", o.SleepStep, o.PollInterval)
	}

	if cfg.Chunking.MinSize > cfg.Chunking.Size {
		return fmt.Errorf("chunking.min_size (%d) maior que chunking.size (%d)", cfg.Chunking.MinSize, cfg.Chunking.Size)
	}

	if cfg.Embedding.Provider == "openai" && cfg.Embedding.Endpoint == "" {
		return fmt.Errorf("embedding.endpoint é obrigatório para o provider openai")
	}

	vs := cfg.VectorStore
	switch vs.Provider {
	case "pgvector":
		if vs.PGVector.DSN == "" {
			return fmt.Errorf("vector_store.pgvector.dsn é obrigatório")
		}
	case "chromem":
		if vs.Chromem.Path == "" || vs.Chromem.Collection == "" {
			return fmt.Errorf("vector_store.chromem.path e collection são obrigatórios")
		}
	case "pinecone":
		if vs.Pinecone.Host == "" || vs.Pinecone.APIKey == "" {
			return fmt.Errorf("vector_store.pinecone.host e api_key são obrigatórios")
		}
	}

	seen := make(map[string]bool)
	for _, ext := range cfg.Source.AllowedExtensions {
		ext = strings.ToLower(ext)
		if seen[ext] {
			return fmt.Errorf("extensão duplicada em source.allowed_extensions: '%s'", ext)
		}
		seen[ext] = true
	}

	if cv.exprs != nil && cfg.Enrichment.Filter != "" {
		if err := cv.exprs.Check(cfg.Enrichment.Filter); err != nil {
			return fmt.Errorf("enrichment.filter inválido: %w", err)
		}
	}

	targets := make(map[string]bool)
	for _, rule := range cfg.Enrichment.Metadata {
		if targets[rule.Target] {
			return fmt.Errorf("target duplicado em enrichment.metadata: '%s'", rule.Target)
		}
		targets[rule.Target] = true

		if cv.exprs == nil {
			continue
		}
		for _, expr := range []string{rule.Condition, rule.Value, rule.ElseValue} {
			if expr == "" {
				continue
			}
			if err := cv.exprs.Check(expr); err != nil {
				return fmt.Errorf("enrichment.metadata '%s' inválido: %w", rule.Name, err)
			}
		}
	}

	return nil
}
