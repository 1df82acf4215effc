package fsm_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/dataflow-sim/lib/simulation/fsm"
	"github.com/r3e-network/dataflow-sim/lib/simulation/model"
)

func sequentialSeq() func() uint64 {
	var n uint64
	return func() uint64 { n++; return n }
}

func noRand() func() float64 {
	return func() float64 { return 0 }
}

// passthroughDoorFSM is a minimal two-state door: any token_received
// event on input "sensor" passes straight through as an "opened"
// message, which drives a message-triggered transition from closed to
// open and fires a token output action on entry.
func passthroughDoorFSM() *model.FSMProcess {
	return &model.FSMProcess{
		Inputs:       []model.Input{{Name: "sensor"}},
		Outputs:      []model.Output{{Name: "alert", DestinationNodeID: "sink", DestinationInputName: "in"}},
		InitialState: "closed",
		States: []model.State{
			{Name: "closed"},
			{
				Name: "open",
				OnEntry: []model.Action{{
					Name: "raise_alert",
					Outputs: []model.ActionOutput{{
						Kind: model.OutToken, Target: "alert", Formula: "1",
					}},
				}},
			},
		},
		Transitions: []model.Transition{
			{From: "closed", To: "open", Trigger: model.TriggerMessage, MessageType: "opened"},
		},
		Rules: []model.Rule{
			{Name: "door_passthrough", Priority: 1, EventType: "token_received", Method: model.InterpretPassthrough, MessageType: "opened"},
		},
	}
}

func TestRuntimeTransitionsOnPassthroughMessage(t *testing.T) {
	rt := fsm.New("door", passthroughDoorFSM(), fsm.Deps{})
	require.Equal(t, "closed", rt.State())

	rt.PushEvent(fsm.TokenReceivedEvent("tok-1", "sensor", true))
	effects, fired := rt.Tick(0, noRand(), sequentialSeq())

	require.Len(t, fired, 1)
	assert.Equal(t, "closed", fired[0].From)
	assert.Equal(t, "open", fired[0].To)
	assert.Equal(t, "open", rt.State())

	var sawTokenEffect bool
	for _, e := range effects {
		if e.Kind == fsm.EffectToken && e.OutputName == "alert" {
			sawTokenEffect = true
		}
	}
	assert.True(t, sawTokenEffect, "entering 'open' should fire its onEntry token action, got %+v", effects)
}

func TestRuntimeNoEventsProducesNoTransition(t *testing.T) {
	rt := fsm.New("door", passthroughDoorFSM(), fsm.Deps{})
	effects, fired := rt.Tick(0, noRand(), sequentialSeq())
	assert.Empty(t, fired)
	assert.Empty(t, effects)
	assert.Equal(t, "closed", rt.State())
}

// timerFSM transitions from "waiting" to "timedOut" after 3 ticks with
// no external message.
func timerFSM() *model.FSMProcess {
	return &model.FSMProcess{
		InitialState: "waiting",
		States:       []model.State{{Name: "waiting"}, {Name: "timedOut"}},
		Transitions: []model.Transition{
			{From: "waiting", To: "timedOut", Trigger: model.TriggerTimer, TimeoutTicks: 3},
		},
	}
}

func TestRuntimeTimerTransitionFiresAfterTimeout(t *testing.T) {
	rt := fsm.New("watchdog", timerFSM(), fsm.Deps{})
	for tick := int64(0); tick < 3; tick++ {
		_, fired := rt.Tick(tick, noRand(), sequentialSeq())
		assert.Empty(t, fired, "should not fire before timeoutTicks have elapsed (tick=%d)", tick)
	}
	_, fired := rt.Tick(3, noRand(), sequentialSeq())
	require.Len(t, fired, 1)
	assert.Equal(t, "timedOut", rt.State())
}

func TestFeedbackManagerAdmitsUnderDepthAndThreshold(t *testing.T) {
	cfg := fsm.DefaultFeedbackConfig()
	mgr := fsm.NewFeedbackManager(cfg)

	_, depth, reason := mgr.Admit(time.Unix(0, 0), "node-a", 0)
	assert.Empty(t, reason)
	assert.Equal(t, 1, depth)
}

func TestFeedbackManagerBlocksBeyondMaxDepth(t *testing.T) {
	cfg := fsm.DefaultFeedbackConfig()
	cfg.MaxDepth = 2
	mgr := fsm.NewFeedbackManager(cfg)

	_, _, reason := mgr.Admit(time.Unix(0, 0), "node-a", 2)
	assert.NotEmpty(t, reason)
}

