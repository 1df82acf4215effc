package script

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteReturnsOutput(t *testing.T) {
	e := New()
	res, err := e.Execute(context.Background(), Request{
		Script:     `function main(event) { console.log("hi"); return {doubled: event.value * 2}; }`,
		EntryPoint: "main",
		Input:      map[string]any{"value": 21.0},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Output["doubled"]) // goja exports whole numbers as int64
	assert.Contains(t, res.Logs[0], "hi")
}

func TestExecuteMissingEntryPoint(t *testing.T) {
	e := New()
	_, err := e.Execute(context.Background(), Request{
		Script: `function other() { return {}; }`,
	})
	require.Error(t, err)
}

func TestExecuteTimeout(t *testing.T) {
	e := New()
	_, err := e.Execute(context.Background(), Request{
		Script:     `function main(){ while(true){} }`,
		EntryPoint: "main",
		Timeout:    50 * time.Millisecond,
	})
	require.Error(t, err)
}

func TestValidateRejectsSyntaxError(t *testing.T) {
	e := New()
	require.Error(t, e.Validate("function main( {"))
	require.NoError(t, e.Validate("function main(e){ return e; }"))
}
