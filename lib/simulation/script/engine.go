// Package script provides the sandboxed JavaScript execution used by
// the FSM's "script" interpretation method (spec §4.4); no action
// output kind runs scripts. It is grounded directly on the teacher
// repository's goja-based TEE script engine
// (system/tee/script_engine.go): a fresh *goja.Runtime per invocation,
// console.log captured into a log slice, and the entry point invoked
// with a single input value.
//
// This is kept strictly separate from lib/simulation/formula: formulas
// are the deterministic, provably side-effect-free evaluator the
// kernel's hot path runs on every tick; script is the explicitly
// opt-in, explicitly sandboxed escape hatch for user code that the spec
// itself calls out as a distinct interpretation method, never used for
// core per-tick node processing.
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// Request is one script execution request.
type Request struct {
	Script     string
	EntryPoint string // defaults to "main" if empty
	Input      map[string]any
	Timeout    time.Duration
}

// Result is the outcome of a script execution.
type Result struct {
	Output map[string]any
	Logs   []string
}

// Engine executes untrusted script snippets in an isolated goja
// runtime per call. Engine itself holds no per-script state, so it is
// safe to share across goroutines.
type Engine struct {
	mu      sync.Mutex
	counter int
}

// New constructs a script Engine.
func New() *Engine { return &Engine{} }

// Execute runs req.Script in a fresh runtime and calls its entry point
// function with req.Input. A zero or negative Timeout disables the
// interrupt watchdog.
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	entry := req.EntryPoint
	if entry == "" {
		entry = "main"
	}

	vm := goja.New()
	logs := make([]string, 0, 4)

	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		logs = append(logs, fmt.Sprint(parts))
		return goja.Undefined()
	})
	if err := vm.Set("console", console); err != nil {
		return nil, fmt.Errorf("bind console: %w", err)
	}

	if err := vm.Set("event", vm.ToValue(req.Input)); err != nil {
		return nil, fmt.Errorf("bind event: %w", err)
	}

	if req.Timeout > 0 {
		timer := time.AfterFunc(req.Timeout, func() {
			vm.Interrupt("script execution timed out")
		})
		defer timer.Stop()
	}

	if _, err := vm.RunString(req.Script); err != nil {
		return nil, fmt.Errorf("compile/run script: %w", err)
	}

	fn, ok := goja.AssertFunction(vm.Get(entry))
	if !ok {
		return nil, fmt.Errorf("entry point %q is not a function", entry)
	}

	resultVal, err := fn(goja.Undefined(), vm.Get("event"))
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", entry, err)
	}

	output := map[string]any{}
	if resultVal != nil && !goja.IsUndefined(resultVal) && !goja.IsNull(resultVal) {
		exported := resultVal.Export()
		if m, ok := exported.(map[string]any); ok {
			output = m
		} else {
			b, err := json.Marshal(exported)
			if err == nil {
				_ = json.Unmarshal(b, &output)
			}
			if len(output) == 0 {
				output = map[string]any{"result": exported}
			}
		}
	}

	return &Result{Output: output, Logs: logs}, nil
}

// Validate compiles script without running it, rejecting syntax errors
// before it is ever stored on a rule or action.
func (e *Engine) Validate(script string) error {
	if _, err := goja.Compile("rule.js", script, false); err != nil {
		return fmt.Errorf("invalid script: %w", err)
	}
	return nil
}
