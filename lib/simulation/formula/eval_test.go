package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalArithmetic(t *testing.T) {
	ctx := &Context{Inputs: map[string]any{"T": 25.5, "H": 60.2}}
	v, err := Eval("0.7 * T + 0.3 * H", ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.7*25.5+0.3*60.2, v.(float64), 1e-9)
}

func TestEvalComparisonAndTernary(t *testing.T) {
	ctx := &Context{Inputs: map[string]any{"x": 10.0}}
	v, err := Eval(`x > 5 ? "hot" : "cold"`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "hot", v)
}

func TestEvalMathIntrinsics(t *testing.T) {
	ctx := &Context{}
	v, err := Eval("Math.max(1, 2, 3)", ctx)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestEvalPropertyAccess(t *testing.T) {
	ctx := &Context{Variables: map[string]any{"cfg": map[string]any{"threshold": 42.0}}}
	v, err := Eval("variables.cfg.threshold", ctx)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}

func TestEvalDeterministicUUID(t *testing.T) {
	seq := uint64(0)
	ctx := &Context{Sequence: func() uint64 { seq++; return seq }}
	v1, err := Eval("uuid()", ctx)
	require.NoError(t, err)
	v2, err := Eval("uuid()", ctx)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
	assert.Equal(t, "tok-1", v1)
}

func TestEvalRejectsUnknownIdentifier(t *testing.T) {
	_, err := Eval("doesNotExist + 1", &Context{})
	require.Error(t, err)
}

func TestEvalDivisionByZero(t *testing.T) {
	_, err := Eval("1 / 0", &Context{})
	require.Error(t, err)
}

func TestSubstituteTemplate(t *testing.T) {
	out := Substitute("node {{node.id}} emitted {{node.value}}", map[string]any{
		"node": map[string]any{"id": "n1", "value": 42},
	})
	assert.Equal(t, "node n1 emitted 42", out)
}

func TestSubstituteMissingPathIsEmpty(t *testing.T) {
	out := Substitute("value: {{missing.path}}", map[string]any{"a": 1})
	assert.Equal(t, "value: ", out)
}
