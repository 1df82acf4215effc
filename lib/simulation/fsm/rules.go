package fsm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/r3e-network/dataflow-sim/internal/errors"
	"github.com/r3e-network/dataflow-sim/lib/simulation/formula"
	"github.com/r3e-network/dataflow-sim/lib/simulation/model"
	"github.com/r3e-network/dataflow-sim/lib/simulation/script"
)

// AIClient is the external interpretation collaborator of spec §6: an
// opaque call carrying a prompt, the raw event and the candidate
// message types, returning ranked interpretations with a confidence.
// Only the interface is in scope here; the kernel wires in whatever
// concrete client a host program provides (or none, in which case
// "ai"-method rules never match).
type AIClient interface {
	Interpret(prompt string, event Event, candidateTypes []string) ([]AIInterpretation, error)
}

// AIInterpretation is one ranked candidate returned by an AIClient.
type AIInterpretation struct {
	MessageType string
	Payload     map[string]any
	Confidence  float64
}

// stringProjection renders event.Data as a single string for a rule's
// regex Pattern to match against, the way the source's event router
// stringifies a raw payload before running it through a pattern table.
func stringProjection(ev Event) string {
	if raw, ok := ev.Data["raw"]; ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	b, err := json.Marshal(ev.Data)
	if err != nil {
		return ""
	}
	return string(b)
}

func ruleMatches(r model.Rule, ev Event) bool {
	if r.EventType != "" && r.EventType != ev.Type {
		return false
	}
	if r.SourceType != "" && r.SourceType != ev.SourceType {
		return false
	}
	for k, v := range r.MetadataEquals {
		if ev.Metadata[k] != v {
			return false
		}
	}
	if r.Pattern != "" {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return false
		}
		if !re.MatchString(stringProjection(ev)) {
			return false
		}
	}
	return true
}

// matchRules selects the highest-priority rules (descending Priority)
// whose conditions hold for ev.
func matchRules(rules []model.Rule, ev Event) []model.Rule {
	var matched []model.Rule
	for _, r := range rules {
		if ruleMatches(r, ev) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Priority > matched[j].Priority })
	return matched
}

// interpret evaluates rules in descending priority against ev, applying
// the first rule that both matches and successfully produces one or
// more messages (spec §4.4 step 1).
func (rt *Runtime) interpret(ev Event, ai AIClient, scriptEngine *script.Engine) ([]Message, error) {
	matched := matchRules(rt.def.Rules, ev)
	for _, rule := range matched {
		msgs, err := rt.applyRule(rule, ev, ai, scriptEngine)
		if err != nil {
			continue // this rule failed to interpret; fall through to the next match
		}
		if len(msgs) > 0 {
			return msgs, nil
		}
	}
	return nil, nil
}

func (rt *Runtime) applyRule(rule model.Rule, ev Event, ai AIClient, scriptEngine *script.Engine) ([]Message, error) {
	switch rule.Method {
	case model.InterpretPattern:
		return rt.interpretPattern(rule, ev)
	case model.InterpretFormula:
		return rt.interpretFormula(rule, ev)
	case model.InterpretAI:
		return rt.interpretAI(rule, ev, ai)
	case model.InterpretScript:
		return rt.interpretScript(rule, ev, scriptEngine)
	case model.InterpretPassthrough:
		return rt.interpretPassthrough(rule, ev)
	default:
		return nil, errors.New(errors.CodeEvaluation, errors.SeverityRecorded, fmt.Sprintf("unknown interpretation method %q", rule.Method))
	}
}

func (rt *Runtime) newMessage(rule model.Rule, ev Event, payload map[string]any) Message {
	return Message{
		ID:                 rt.nextID("msg"),
		Type:               rule.MessageType,
		Payload:            payload,
		GeneratingEventID:  ev.ID,
		GeneratingRuleName: rule.Name,
	}
}

// interpretPattern matches Pattern against the event's string
// projection and maps named capture groups into payload fields
// (falling back to positional "$1", "$2", ... names).
func (rt *Runtime) interpretPattern(rule model.Rule, ev Event) ([]Message, error) {
	re, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return nil, err
	}
	subject := stringProjection(ev)
	m := re.FindStringSubmatch(subject)
	if m == nil {
		return nil, fmt.Errorf("pattern %q did not match", rule.Pattern)
	}
	names := re.SubexpNames()
	payload := map[string]any{}
	for i, val := range m {
		if i == 0 {
			continue
		}
		key := names[i]
		if key == "" {
			key = fmt.Sprintf("$%d", i)
		}
		payload[key] = val
	}
	for src, dst := range rule.FieldMapping {
		if v, ok := payload[src]; ok {
			payload[dst] = v
		}
	}
	return []Message{rt.newMessage(rule, ev, payload)}, nil
}

// interpretFormula evaluates Formula to a payload object.
func (rt *Runtime) interpretFormula(rule model.Rule, ev Event) ([]Message, error) {
	ctx := &formula.Context{
		Variables: rt.variables,
		State:     rt.state,
		Inputs:    map[string]any{"event": map[string]any(ev.Data), "metadata": stringMapToAny(ev.Metadata)},
		Now:       rt.now,
		Rand:      rt.rand,
		Sequence:  rt.seqFn,
	}
	v, err := formula.Eval(rule.Formula, ctx)
	if err != nil {
		return nil, err
	}
	payload, ok := v.(map[string]any)
	if !ok {
		payload = map[string]any{"value": v}
	}
	return []Message{rt.newMessage(rule, ev, payload)}, nil
}

// interpretAI delegates to the external AI collaborator and rejects the
// interpretation if every candidate falls below the rule's confidence
// floor (spec §4.4).
func (rt *Runtime) interpretAI(rule model.Rule, ev Event, ai AIClient) ([]Message, error) {
	if ai == nil {
		return nil, fmt.Errorf("ai interpretation rule %q requires an AIClient", rule.Name)
	}
	candidates, err := ai.Interpret(rule.Formula, ev, []string{rule.MessageType})
	if err != nil {
		return nil, err
	}
	var msgs []Message
	for _, c := range candidates {
		if c.Confidence < rule.ConfidenceFloor {
			continue
		}
		msgs = append(msgs, rt.newMessage(rule, ev, c.Payload))
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("no AI interpretation for %q met confidence floor %.2f", rule.Name, rule.ConfidenceFloor)
	}
	return msgs, nil
}

// interpretScript runs Script in the sandboxed evaluator and expects it
// to return the message payload object.
func (rt *Runtime) interpretScript(rule model.Rule, ev Event, scriptEngine *script.Engine) ([]Message, error) {
	if scriptEngine == nil {
		return nil, fmt.Errorf("script interpretation rule %q requires a script.Engine", rule.Name)
	}
	result, err := scriptEngine.Execute(rt.ctx, script.Request{
		Script: rule.Script,
		Input:  map[string]any{"event": ev.Data, "metadata": stringMapToAny(ev.Metadata)},
	})
	if err != nil {
		return nil, err
	}
	return []Message{rt.newMessage(rule, ev, result.Output)}, nil
}

// interpretPassthrough copies the raw event data, optionally remapping
// fields, directly into the message payload.
func (rt *Runtime) interpretPassthrough(rule model.Rule, ev Event) ([]Message, error) {
	payload := map[string]any{}
	for k, v := range ev.Data {
		payload[k] = v
	}
	for src, dst := range rule.FieldMapping {
		if v, ok := payload[src]; ok {
			payload[dst] = v
			if src != dst {
				delete(payload, src)
			}
		}
	}
	return []Message{rt.newMessage(rule, ev, payload)}, nil
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
