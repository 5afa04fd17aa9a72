package rules

import (
	"fmt"

	"github.com/raywall/fast-doc-pipeline/pkg/config"
)

// TransformationResult contém o resultado de uma regra de metadados.
type TransformationResult struct {
	Applied bool
	Target  string
	Value   interface{}
}

// ExecuteTransformation verifica a condição e, se atendida, calcula Value.
// Se não, usa ElseValue quando existir.
func (rm *RuleManager) ExecuteTransformation(rule config.MetadataRule, vars map[string]interface{}) (*TransformationResult, error) {
	conditionMet, err := rm.EvaluateBool(rule.Condition, vars)
	if err != nil {
		return nil, fmt.Errorf("falha ao avaliar condição da regra '%s': %w", rule.Name, err)
	}

	expr := rule.Value
	if !conditionMet {
		if rule.ElseValue == "" {
			return &TransformationResult{Applied: false}, nil
		}
		expr = rule.ElseValue
	}

	val, err := rm.EvaluateValue(expr, vars)
	if err != nil {
		return nil, fmt.Errorf("falha ao calcular valor da regra '%s': %w", rule.Name, err)
	}

	return &TransformationResult{
		Target:  rule.Target,
		Value:   val,
		Applied: true,
	}, nil
}
