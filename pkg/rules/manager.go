// Package rules compila e avalia as expressões CEL usadas no enriquecimento:
// o filtro de chunks e as regras de metadados.
package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// RuleManager gerencia a compilação e avaliação de expressões CEL.
// Programas compilados ficam em cache por expressão.
type RuleManager struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewRuleManager inicializa o ambiente CEL com as variáveis "chunk" e "document".
func NewRuleManager() (*RuleManager, error) {
	env, err := cel.NewEnv(
		cel.Variable("chunk", cel.DynType),    // text, word_count, page, heading, index
		cel.Variable("document", cel.DynType), // document_id, file_name, title, format, page_count, source
	)
	if err != nil {
		return nil, fmt.Errorf("erro fatal CEL init: %w", err)
	}

	return &RuleManager{env: env, programs: make(map[string]cel.Program)}, nil
}

// Check compila a expressão sem avaliá-la.
func (rm *RuleManager) Check(expr string) error {
	_, err := rm.program(expr)
	return err
}

// EvaluateBool processa regras de filtro (deve retornar true/false).
func (rm *RuleManager) EvaluateBool(expression string, vars map[string]interface{}) (bool, error) {
	if expression == "" {
		return true, nil // Expressão vazia = aprova
	}

	out, err := rm.eval(expression, vars)
	if err != nil {
		return false, err
	}

	if val, ok := out.(bool); ok {
		return val, nil
	}
	return false, fmt.Errorf("resultado de '%s' não é booleano: %T", expression, out)
}

// EvaluateValue processa regras de transformação (retorna um valor dinâmico).
func (rm *RuleManager) EvaluateValue(expression string, vars map[string]interface{}) (interface{}, error) {
	if expression == "" {
		return nil, nil
	}
	return rm.eval(expression, vars)
}

func (rm *RuleManager) eval(expression string, vars map[string]interface{}) (interface{}, error) {
	prg, err := rm.program(expression)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.Eval(vars)
	if err != nil {
		return nil, fmt.Errorf("erro execução CEL '%s': %w", expression, err)
	}
	return out.Value(), nil
}

func (rm *RuleManager) program(expr string) (cel.Program, error) {
	rm.mu.RLock()
	prg, ok := rm.programs[expr]
	rm.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := rm.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("erro de compilação CEL: %w", issues.Err())
	}
	prg, err := rm.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("erro ao gerar programa CEL: %w", err)
	}

	rm.mu.Lock()
	rm.programs[expr] = prg
	rm.mu.Unlock()
	return prg, nil
}
