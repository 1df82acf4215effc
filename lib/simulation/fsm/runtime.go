package fsm

import (
	"context"
	"fmt"

	"github.com/r3e-network/dataflow-sim/lib/simulation/model"
	"github.com/r3e-network/dataflow-sim/lib/simulation/script"
)

// Runtime owns one FSMProcessNode's live state: current state, FSM
// variables (global and per-state-scoped), pending delayed actions, and
// the three input streams of spec §4.4 (tokens are adapted into
// synthetic events by the kernel before PushEvent, so Runtime only ever
// sees Events and Messages).
type Runtime struct {
	nodeID string
	def    *model.FSMProcess

	state          string
	stateChangedAt int64
	variables      map[string]any
	stateVars      map[string]map[string]any
	pending        []scheduledAction
	fired          []TransitionFired

	events   []Event
	messages []Message

	now   int64
	rand  func() float64
	seqFn func() uint64
	ctx   context.Context
	idSeq uint64

	ai     AIClient
	script *script.Engine
}

// nextID mints a runtime-local unique id for synthesized events and
// messages, prefixed for readability in log entries.
func (rt *Runtime) nextID(prefix string) string {
	rt.idSeq++
	return fmt.Sprintf("%s-%s-%d", prefix, rt.nodeID, rt.idSeq)
}

// Deps bundles the collaborators a Runtime needs but does not own.
type Deps struct {
	AI     AIClient       // optional; nil means "ai" rules never match
	Script *script.Engine // optional; nil means "script" rules error
	Ctx    context.Context
}

// New constructs a Runtime for one FSMProcessNode, seeding its initial
// state and variables from the declarative model.
func New(nodeID string, def *model.FSMProcess, deps Deps) *Runtime {
	ctx := deps.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	vars := map[string]any{}
	for k, v := range def.Variables {
		vars[k] = v
	}
	return &Runtime{
		nodeID:    nodeID,
		def:       def,
		state:     def.InitialState,
		variables: vars,
		stateVars: map[string]map[string]any{},
		ctx:       ctx,
		ai:        deps.AI,
		script:    deps.Script,
	}
}

// State returns the FSM's current state name.
func (rt *Runtime) State() string { return rt.state }

// Variables returns the runtime's global FSM variables (read-only use
// expected; callers should not mutate the returned map).
func (rt *Runtime) Variables() map[string]any { return rt.variables }

// PushEvent enqueues a raw event (external, or the kernel's synthetic
// token_received adaptation) for interpretation on the next Tick.
func (rt *Runtime) PushEvent(ev Event) { rt.events = append(rt.events, ev) }

// PushMessage enqueues a message directly, bypassing interpretation —
// used when another node's action routed a message straight to this
// node (spec §4.4's action system message output).
func (rt *Runtime) PushMessage(msg Message) { rt.messages = append(rt.messages, msg) }

// TokenReceivedEvent builds the synthetic event the kernel feeds in for
// every token arriving on a declared input (spec §4.4 step 2).
func TokenReceivedEvent(id, inputName string, value any) Event {
	return Event{ID: id, Type: "token_received", SourceType: inputName, Data: map[string]any{"input": inputName, "value": value}}
}

// Tick advances the FSM by one simulation tick: due delayed actions
// run first, then pending events are interpreted into messages, then
// at most one transition fires (message-triggered transitions take
// priority, then condition-triggered, then timer-triggered), per spec
// §4.4. It returns every effect produced and the transitions fired.
func (rt *Runtime) Tick(now int64, rnd func() float64, seqFn func() uint64) ([]Effect, []TransitionFired) {
	rt.now = now
	rt.rand = rnd
	rt.seqFn = seqFn
	rt.fired = nil

	var effects []Effect
	effects = append(effects, rt.dueActions()...)

	pendingEvents := rt.events
	rt.events = nil
	for _, ev := range pendingEvents {
		msgs, err := rt.interpret(ev, rt.ai, rt.script)
		if err != nil {
			continue
		}
		rt.messages = append(rt.messages, msgs...)
	}

	transitioned := false
	pendingMessages := rt.messages
	rt.messages = nil
	for _, msg := range pendingMessages {
		if transitioned {
			// at most one transition per tick; remaining messages are
			// discarded, not carried over to the next tick (spec §4.4).
			continue
		}
		if t, trigger := rt.findMessageTransition(msg); t != nil {
			effects = append(effects, rt.fire(t, "message", trigger)...)
			transitioned = true
		}
	}

	if !transitioned {
		if t, trigger := rt.findConditionTransition(); t != nil {
			effects = append(effects, rt.fire(t, "condition", trigger)...)
			transitioned = true
		}
	}
	if !transitioned {
		if t, trigger := rt.findTimerTransition(); t != nil {
			effects = append(effects, rt.fire(t, "timer", trigger)...)
		}
	}

	return effects, rt.fired
}
