package fsm

import "github.com/r3e-network/dataflow-sim/lib/simulation/model"

// findMessageTransition returns the first transition from the current
// state whose trigger matches msg's type and whose guard (if any) holds
// (spec §4.4 step 3: "take the first qualifying transition").
func (rt *Runtime) findMessageTransition(msg Message) (*model.Transition, map[string]any) {
	trigger := map[string]any{"message": msg.Payload, "messageType": msg.Type}
	for i := range rt.def.Transitions {
		t := &rt.def.Transitions[i]
		if t.Trigger != model.TriggerMessage || t.From != rt.state {
			continue
		}
		if t.MessageType != "" && t.MessageType != msg.Type {
			continue
		}
		if t.Guard != "" {
			ok, err := rt.evalBool(t.Guard, trigger)
			if err != nil || !ok {
				continue
			}
		}
		return t, trigger
	}
	return nil, nil
}

// findConditionTransition returns the first condition-triggered
// transition from the current state whose Condition formula is true.
func (rt *Runtime) findConditionTransition() (*model.Transition, map[string]any) {
	trigger := map[string]any{}
	for i := range rt.def.Transitions {
		t := &rt.def.Transitions[i]
		if t.Trigger != model.TriggerCondition || t.From != rt.state {
			continue
		}
		ok, err := rt.evalBool(t.Condition, trigger)
		if err != nil || !ok {
			continue
		}
		return t, trigger
	}
	return nil, nil
}

// findTimerTransition returns the first timer-triggered transition from
// the current state whose timeout has elapsed since the last state
// change.
func (rt *Runtime) findTimerTransition() (*model.Transition, map[string]any) {
	for i := range rt.def.Transitions {
		t := &rt.def.Transitions[i]
		if t.Trigger != model.TriggerTimer || t.From != rt.state {
			continue
		}
		if rt.now-rt.stateChangedAt >= t.TimeoutTicks {
			return t, map[string]any{}
		}
	}
	return nil, nil
}

// stateByName looks up a declared state by name.
func (rt *Runtime) stateByName(name string) *model.State {
	for i := range rt.def.States {
		if rt.def.States[i].Name == name {
			return &rt.def.States[i]
		}
	}
	return nil
}

// fire takes transition t (triggered by kind, with the formula
// inputs that qualified it), running the outgoing state's on-exit
// actions, moving the FSM, then the incoming state's on-entry actions.
// At most one transition fires per tick (spec §4.4 step 3).
func (rt *Runtime) fire(t *model.Transition, kind string, trigger map[string]any) []Effect {
	var effects []Effect

	if from := rt.stateByName(t.From); from != nil {
		for _, a := range from.OnExit {
			effects = append(effects, rt.runAction(a, trigger)...)
		}
	}

	rt.fired = append(rt.fired, TransitionFired{From: t.From, To: t.To, Trigger: kind})
	rt.state = t.To
	rt.stateChangedAt = rt.now

	if to := rt.stateByName(t.To); to != nil {
		for _, a := range to.OnEntry {
			effects = append(effects, rt.runAction(a, trigger)...)
		}
	}
	return effects
}
