package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkVars() map[string]interface{} {
	return map[string]interface{}{
		"chunk": map[string]interface{}{
			"text":       "The orchestrator claims documents.",
			"word_count": 4,
			"page":       2,
			"heading":    "Claims",
		},
		"document": map[string]interface{}{
			"file_name": "guide.pdf",
			"format":    "pdf",
		},
	}
}

func TestEvaluateBool(t *testing.T) {
	rm, err := NewRuleManager()
	require.NoError(t, err)

	ok, err := rm.EvaluateBool("chunk.word_count >= 3 && document.format == 'pdf'", chunkVars())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rm.EvaluateBool("chunk.text.contains('invoice')", chunkVars())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rm.EvaluateBool("", nil)
	require.NoError(t, err)
	assert.True(t, ok, "expressão vazia aprova")
}

func TestEvaluateBool_NotBoolean(t *testing.T) {
	rm, _ := NewRuleManager()
	_, err := rm.EvaluateBool("chunk.page + 1", chunkVars())
	assert.ErrorContains(t, err, "não é booleano")
}

func TestEvaluateValue(t *testing.T) {
	rm, _ := NewRuleManager()

	res, err := rm.EvaluateValue("chunk.page * 2", chunkVars())
	require.NoError(t, err)
	assert.Equal(t, int64(4), res)

	res, err = rm.EvaluateValue("", chunkVars())
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestCheck(t *testing.T) {
	rm, _ := NewRuleManager()

	assert.NoError(t, rm.Check("chunk.word_count > 10"))
	assert.ErrorContains(t, rm.Check("chunk.word_count >"), "compilação")
	assert.Error(t, rm.Check("unknown_var == 1"))

	// Segunda chamada usa o programa em cache
	assert.NoError(t, rm.Check("chunk.word_count > 10"))
	assert.Len(t, rm.programs, 1)
}

func TestEvaluate_MissingField(t *testing.T) {
	rm, _ := NewRuleManager()
	_, err := rm.EvaluateBool("chunk.missing == 1", chunkVars())
	assert.ErrorContains(t, err, "execução")
}
