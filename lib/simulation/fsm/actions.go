package fsm

import (
	"fmt"

	"github.com/r3e-network/dataflow-sim/lib/simulation/formula"
	"github.com/r3e-network/dataflow-sim/lib/simulation/model"
)

// scheduledAction is an action whose execution was deferred by its
// DelayTicks (spec §4.4: "on entering a state, all of its declared
// on-entry actions are scheduled, with optional per-action delay").
type scheduledAction struct {
	executeAt int64
	action    model.Action
	trigger   map[string]any
}

// scopeVars returns the mutable variable map an ActionOutput with
// VarScope "state" writes to, creating it on first use.
func (rt *Runtime) scopeVars(scope string) map[string]any {
	if scope == "state" {
		m, ok := rt.stateVars[rt.state]
		if !ok {
			m = map[string]any{}
			rt.stateVars[rt.state] = m
		}
		return m
	}
	return rt.variables
}

// runAction schedules action for execution: immediately if DelayTicks
// is zero, otherwise at rt.now + DelayTicks.
func (rt *Runtime) runAction(action model.Action, trigger map[string]any) []Effect {
	if action.DelayTicks > 0 {
		rt.pending = append(rt.pending, scheduledAction{
			executeAt: rt.now + action.DelayTicks,
			action:    action,
			trigger:   trigger,
		})
		return nil
	}
	return rt.executeAction(action, trigger)
}

// dueActions pops and executes every pending action whose executeAt has
// arrived, preserving schedule order.
func (rt *Runtime) dueActions() []Effect {
	var effects []Effect
	var remaining []scheduledAction
	for _, p := range rt.pending {
		if p.executeAt <= rt.now {
			effects = append(effects, rt.executeAction(p.action, p.trigger)...)
		} else {
			remaining = append(remaining, p)
		}
	}
	rt.pending = remaining
	return effects
}

// executeAction runs every declared output of action in order, honoring
// each output's Condition and onError policy (spec §4.4).
func (rt *Runtime) executeAction(action model.Action, trigger map[string]any) []Effect {
	var effects []Effect
	for _, out := range action.Outputs {
		if out.Condition != "" {
			ok, err := rt.evalBool(out.Condition, trigger)
			if err != nil || !ok {
				continue // condition false (or unevaluable): output skipped, not an error
			}
		}

		attempts := 1
		if out.OnError == model.OnErrorRetry && out.RetryCount > 0 {
			attempts = out.RetryCount + 1
		}

		var eff Effect
		var err error
		for attempt := 0; attempt < attempts; attempt++ {
			eff, err = rt.buildEffect(action.Name, out, trigger)
			if err == nil {
				break
			}
		}
		if err != nil {
			switch out.OnError {
			case model.OnErrorStop:
				return effects
			default: // continue and retry (retries already exhausted above) both proceed
				continue
			}
		}
		effects = append(effects, eff)
	}
	return effects
}

func (rt *Runtime) buildEffect(actionName string, out model.ActionOutput, trigger map[string]any) (Effect, error) {
	eff := Effect{Kind: EffectKind(out.Kind), ActionName: actionName}

	switch out.Kind {
	case model.OutToken:
		v, err := rt.evalValue(out, trigger)
		if err != nil {
			return eff, err
		}
		eff.OutputName = out.Target
		eff.Value = v

	case model.OutEvent:
		payload, err := rt.evalPayload(out, trigger)
		if err != nil {
			return eff, err
		}
		eff.TargetNodeID = out.Target
		eff.Event = &Event{ID: rt.nextID("evt"), Type: out.Formula, Data: payload}

	case model.OutMessage:
		payload, err := rt.evalPayload(out, trigger)
		if err != nil {
			return eff, err
		}
		eff.TargetNodeID = out.Target
		eff.Message = &Message{ID: rt.nextID("msg"), Type: out.Formula, Payload: payload}

	case model.OutAPICall:
		payload, err := rt.evalPayload(out, trigger)
		if err != nil {
			return eff, err
		}
		eff.APICall = &APICallRequest{ActionName: actionName, Target: rt.substitute(out.Target, trigger), Body: payload, ResultVars: map[string]string{}}
		eff.OnError, eff.RetryCount = out.OnError, out.RetryCount

	case model.OutEmail:
		eff.Email = &EmailRequest{ActionName: actionName, To: rt.substitute(out.Target, trigger), Subject: actionName, Body: rt.substitute(out.Template, trigger)}
		eff.OnError, eff.RetryCount = out.OnError, out.RetryCount

	case model.OutLog:
		eff.LogLevel = out.LogLevel
		eff.LogMessage = rt.substitute(out.Template, trigger)

	case model.OutVariable:
		v, err := rt.evalValue(out, trigger)
		if err != nil {
			return eff, err
		}
		rt.applyVariable(out, v)
		eff.VarScope = out.VarScope
		eff.VarName = out.Target
		eff.VarOp = out.VarOp
		eff.Value = v

	default:
		return eff, fmt.Errorf("unknown action output kind %q", out.Kind)
	}
	return eff, nil
}

// evalValue computes an output's scalar value: Formula takes priority
// over Template (a formula value is typed; a template is always a
// string substitution).
func (rt *Runtime) evalValue(out model.ActionOutput, trigger map[string]any) (any, error) {
	if out.Formula != "" {
		return formula.Eval(out.Formula, rt.formulaCtx(trigger))
	}
	return rt.substitute(out.Template, trigger), nil
}

// evalPayload computes an output's object payload the same way, but
// coerces a non-object formula result into {"value": ...}.
func (rt *Runtime) evalPayload(out model.ActionOutput, trigger map[string]any) (map[string]any, error) {
	if out.Formula != "" {
		v, err := formula.Eval(out.Formula, rt.formulaCtx(trigger))
		if err != nil {
			return nil, err
		}
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
		return map[string]any{"value": v}, nil
	}
	return map[string]any{"text": rt.substitute(out.Template, trigger)}, nil
}

func (rt *Runtime) applyVariable(out model.ActionOutput, v any) {
	scope := rt.scopeVars(out.VarScope)
	switch out.VarOp {
	case "increment":
		cur, _ := toFloat(scope[out.Target])
		delta, _ := toFloat(v)
		scope[out.Target] = cur + delta
	case "append":
		existing, _ := scope[out.Target].([]any)
		scope[out.Target] = append(existing, v)
	default: // "set" and anything unrecognised
		scope[out.Target] = v
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func (rt *Runtime) evalBool(src string, trigger map[string]any) (bool, error) {
	v, err := formula.Eval(src, rt.formulaCtx(trigger))
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not evaluate to a boolean", src)
	}
	return b, nil
}

func (rt *Runtime) substitute(tpl string, trigger map[string]any) string {
	root := map[string]any{"variables": rt.variables, "state": rt.state}
	for k, v := range trigger {
		root[k] = v
	}
	return formula.Substitute(tpl, root)
}

func (rt *Runtime) formulaCtx(trigger map[string]any) *formula.Context {
	return &formula.Context{
		Variables: rt.variables,
		State:     rt.state,
		Inputs:    trigger,
		Now:       rt.now,
		Rand:      rt.rand,
		Sequence:  rt.seqFn,
	}
}
