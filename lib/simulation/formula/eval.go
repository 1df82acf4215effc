// Package formula implements the pure, side-effect-free expression
// evaluator used by process-node outputs, queue post-aggregation
// formulas, and FSM guards/conditions (spec §4.2). It is a hand-written
// Pratt parser rather than a library or a sandboxed JS runtime: the
// spec's design notes call out the source's use of an unsafe host
// `Function` constructor as a correctness and safety defect, and
// require a deterministic, side-effect-free evaluator in its place.
// Opaque user scripting (the FSM's "script" interpretation method) is
// intentionally NOT handled here — see lib/simulation/script, which
// sandboxes that distinct, explicitly-unsafe surface with goja.
package formula

import (
	"fmt"
	"math"
	"strings"

	"github.com/r3e-network/dataflow-sim/internal/errors"
)

// Context is the evaluation environment: variables, FSM state,
// per-input token values, and the deterministic utility functions.
type Context struct {
	Variables map[string]any
	State     string
	Inputs    map[string]any

	// Now is returned by the `now()` intrinsic; callers pass the
	// current simulation tick so formulas stay deterministic under
	// replay instead of reading the wall clock.
	Now int64

	// Rand, if set, backs the `random()` intrinsic. It must be a
	// seeded, deterministic source (see lib/simulation/kernel's PRNG);
	// a nil Rand makes `random()` an evaluation error rather than
	// silently falling back to a nondeterministic source.
	Rand func() float64

	// Sequence backs the `uuid()` intrinsic: spec §4.2 requires uuid()
	// to derive deterministically from the log sequence number under
	// replay, not from a random generator.
	Sequence func() uint64
}

func lookup(ctx *Context, name string) (any, bool) {
	switch name {
	case "variables":
		return ctx.Variables, true
	case "state":
		return ctx.State, true
	case "inputs":
		return ctx.Inputs, true
	case "Math":
		return mathNamespace{}, true
	}
	if v, ok := ctx.Inputs[name]; ok {
		return v, true
	}
	if v, ok := ctx.Variables[name]; ok {
		return v, true
	}
	return nil, false
}

type mathNamespace struct{}

// Eval parses and evaluates a formula string against ctx in one shot.
func Eval(src string, ctx *Context) (any, error) {
	ast, err := Parse(src)
	if err != nil {
		return nil, errors.Wrap(errors.CodeEvaluation, errors.SeverityRecorded, "formula parse error", err)
	}
	v, err := evalNode(ast, ctx)
	if err != nil {
		return nil, errors.Wrap(errors.CodeEvaluation, errors.SeverityRecorded, "formula evaluation error", err)
	}
	return v, nil
}

// MustNumber evaluates src and coerces the result to float64.
func MustNumber(src string, ctx *Context) (float64, error) {
	v, err := Eval(src, ctx)
	if err != nil {
		return 0, err
	}
	return toNumber(v)
}

func evalNode(n Node, ctx *Context) (any, error) {
	switch t := n.(type) {
	case NumberLit:
		return t.Value, nil
	case StringLit:
		return t.Value, nil
	case Ident:
		switch t.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		}
		if v, ok := lookup(ctx, t.Name); ok {
			return v, nil
		}
		return nil, fmt.Errorf("undefined identifier %q", t.Name)
	case Unary:
		v, err := evalNode(t.Operand, ctx)
		if err != nil {
			return nil, err
		}
		switch t.Op {
		case "-":
			n, err := toNumber(v)
			if err != nil {
				return nil, err
			}
			return -n, nil
		case "!":
			return !truthy(v), nil
		}
		return nil, fmt.Errorf("unknown unary operator %q", t.Op)
	case Binary:
		return evalBinary(t, ctx)
	case Ternary:
		c, err := evalNode(t.Cond, ctx)
		if err != nil {
			return nil, err
		}
		if truthy(c) {
			return evalNode(t.Then, ctx)
		}
		return evalNode(t.Else, ctx)
	case Member:
		return evalMember(t, ctx)
	case Call:
		return evalCall(t, ctx)
	}
	return nil, fmt.Errorf("unsupported node %T", n)
}

func evalMember(m Member, ctx *Context) (any, error) {
	obj, err := evalNode(m.Object, ctx)
	if err != nil {
		return nil, err
	}
	var key string
	if m.Computed {
		idx, err := evalNode(m.Property, ctx)
		if err != nil {
			return nil, err
		}
		switch v := idx.(type) {
		case string:
			key = v
		case float64:
			return indexSlice(obj, int(v))
		default:
			return nil, fmt.Errorf("invalid index type %T", idx)
		}
	} else {
		key = m.Property.(Ident).Name
	}
	return fieldAccess(obj, key)
}

func indexSlice(obj any, i int) (any, error) {
	s, ok := obj.([]any)
	if !ok {
		return nil, fmt.Errorf("cannot index non-array value of type %T", obj)
	}
	if i < 0 || i >= len(s) {
		return nil, nil
	}
	return s[i], nil
}

func fieldAccess(obj any, key string) (any, error) {
	if _, ok := obj.(mathNamespace); ok {
		return mathMember(key)
	}
	switch v := obj.(type) {
	case map[string]any:
		return v[key], nil
	default:
		return nil, fmt.Errorf("cannot access field %q on value of type %T", key, obj)
	}
}

func mathMember(key string) (any, error) {
	switch key {
	case "PI":
		return math.Pi, nil
	case "E":
		return math.E, nil
	}
	return builtinFunc(key), nil
}

// builtinFunc returns a marker value representing a Math.* intrinsic,
// resolved by name at call time in evalCall.
type mathFn string

func builtinFunc(name string) any { return mathFn(name) }

func evalCall(c Call, ctx *Context) (any, error) {
	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		v, err := evalNode(a, ctx)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch callee := c.Callee.(type) {
	case Ident:
		switch callee.Name {
		case "now":
			return float64(ctx.Now), nil
		case "random":
			if ctx.Rand == nil {
				return nil, fmt.Errorf("random() requires a seeded PRNG in the evaluation context")
			}
			return ctx.Rand(), nil
		case "uuid":
			if ctx.Sequence == nil {
				return nil, fmt.Errorf("uuid() requires a deterministic sequence source in the evaluation context")
			}
			return fmt.Sprintf("tok-%d", ctx.Sequence()), nil
		}
		return nil, fmt.Errorf("unknown function %q", callee.Name)
	case Member:
		obj, err := evalNode(callee.Object, ctx)
		if err != nil {
			return nil, err
		}
		if _, ok := obj.(mathNamespace); ok {
			name := callee.Property.(Ident).Name
			return evalMathCall(name, args)
		}
		return nil, fmt.Errorf("calls are only supported on the Math namespace")
	}
	return nil, fmt.Errorf("unsupported call target")
}

func evalMathCall(name string, args []any) (any, error) {
	nums := make([]float64, len(args))
	for i, a := range args {
		n, err := toNumber(a)
		if err != nil {
			return nil, err
		}
		nums[i] = n
	}
	switch name {
	case "abs":
		return math.Abs(nums[0]), nil
	case "floor":
		return math.Floor(nums[0]), nil
	case "ceil":
		return math.Ceil(nums[0]), nil
	case "round":
		return math.Round(nums[0]), nil
	case "sqrt":
		return math.Sqrt(nums[0]), nil
	case "pow":
		return math.Pow(nums[0], nums[1]), nil
	case "min":
		m := nums[0]
		for _, n := range nums[1:] {
			m = math.Min(m, n)
		}
		return m, nil
	case "max":
		m := nums[0]
		for _, n := range nums[1:] {
			m = math.Max(m, n)
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown Math function %q", name)
}

func evalBinary(b Binary, ctx *Context) (any, error) {
	switch b.Op {
	case "&&":
		l, err := evalNode(b.Left, ctx)
		if err != nil {
			return nil, err
		}
		if !truthy(l) {
			return false, nil
		}
		r, err := evalNode(b.Right, ctx)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	case "||":
		l, err := evalNode(b.Left, ctx)
		if err != nil {
			return nil, err
		}
		if truthy(l) {
			return true, nil
		}
		r, err := evalNode(b.Right, ctx)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}

	l, err := evalNode(b.Left, ctx)
	if err != nil {
		return nil, err
	}
	r, err := evalNode(b.Right, ctx)
	if err != nil {
		return nil, err
	}

	switch b.Op {
	case "+":
		ls, lok := l.(string)
		rs, rok := r.(string)
		if lok || rok {
			if !lok {
				ls = toStringValue(l)
			}
			if !rok {
				rs = toStringValue(r)
			}
			return ls + rs, nil
		}
		ln, err := toNumber(l)
		if err != nil {
			return nil, err
		}
		rn, err := toNumber(r)
		if err != nil {
			return nil, err
		}
		return ln + rn, nil
	case "-", "*", "/", "%":
		ln, err := toNumber(l)
		if err != nil {
			return nil, err
		}
		rn, err := toNumber(r)
		if err != nil {
			return nil, err
		}
		switch b.Op {
		case "-":
			return ln - rn, nil
		case "*":
			return ln * rn, nil
		case "/":
			if rn == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return ln / rn, nil
		case "%":
			if rn == 0 {
				return nil, fmt.Errorf("modulo by zero")
			}
			return math.Mod(ln, rn), nil
		}
	case "==", "===":
		return equalValues(l, r), nil
	case "!=", "!==":
		return !equalValues(l, r), nil
	case "<", "<=", ">", ">=":
		ln, err := toNumber(l)
		if err != nil {
			return nil, err
		}
		rn, err := toNumber(r)
		if err != nil {
			return nil, err
		}
		switch b.Op {
		case "<":
			return ln < rn, nil
		case "<=":
			return ln <= rn, nil
		case ">":
			return ln > rn, nil
		case ">=":
			return ln >= rn, nil
		}
	}
	return nil, fmt.Errorf("unsupported operator %q", b.Op)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

func toNumber(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", v)
	}
}

func toStringValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", x), "0"), ".")
	default:
		return fmt.Sprintf("%v", v)
	}
}

func equalValues(a, b any) bool {
	an, aerr := toNumber(a)
	bn, berr := toNumber(b)
	if aerr == nil && berr == nil {
		return an == bn
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
