// Package replay implements event-sourced capture and deterministic
// replay of simulation runs (spec §4.6): a scenario recording is the
// initial model plus an ordered list of core (externally-originated)
// events plus periodic snapshots; every derived entry in the activity
// log is recomputed, never stored, so replaying the same recording
// must reproduce it byte-for-byte.
package replay

import (
	"github.com/r3e-network/dataflow-sim/lib/simulation/model"
)

// CoreEventType discriminates the seven externally-originated
// occurrences spec §4.6 names as the sole input to replay.
type CoreEventType string

const (
	EventSimulationStart        CoreEventType = "simulation_start"
	EventTimerTick              CoreEventType = "timer_tick"
	EventManualTokenInjection   CoreEventType = "manual_input_injection"
	EventModelUpgrade           CoreEventType = "model_upgrade"
	EventExternalDataFeedArrival CoreEventType = "external_data_feed_arrival"
	EventUserInteraction        CoreEventType = "user_interaction"
	EventSimulationControl      CoreEventType = "simulation_control"
)

// ControlAction enumerates the four simulation_control verbs of the
// capture protocol (spec §6).
type ControlAction string

const (
	ControlPlay  ControlAction = "play"
	ControlPause ControlAction = "pause"
	ControlStep  ControlAction = "step"
	ControlReset ControlAction = "reset"
)

// EventMetadata is every core event's session/ordering/causality
// envelope (spec §4.6: "identifier, ... session identifier, monotonic
// sequence, schema version, optional causing-event identifier").
type EventMetadata struct {
	SessionID      string `json:"sessionId"`
	Sequence       uint64 `json:"sequence"`
	SchemaVersion  string `json:"schemaVersion"`
	CausingEventID string `json:"causingEventId,omitempty"`
}

// TokenInjectionPayload is EventManualTokenInjection's payload.
type TokenInjectionPayload struct {
	InputName string `json:"inputName"`
	Value     any    `json:"value"`
}

// ModelUpgradePayload is EventModelUpgrade's payload.
type ModelUpgradePayload struct {
	Scenario *model.Scenario `json:"scenario"`
	Reason   string          `json:"reason,omitempty"`
}

// ExternalFeedPayload is EventExternalDataFeedArrival's payload: an
// externally-sourced value arriving for a named FSM input, adapted the
// same way a token arrival is (spec §4.4 step 2).
type ExternalFeedPayload struct {
	FeedName  string `json:"feedName"`
	InputName string `json:"inputName"`
	Value     any    `json:"value"`
}

// UserInteractionPayload is EventUserInteraction's payload. User
// interactions only augment the log; they never mutate kernel state
// (spec §4.6 step 2).
type UserInteractionPayload struct {
	Category string         `json:"category"`
	Details  map[string]any `json:"details,omitempty"`
}

// ControlPayload is EventSimulationControl's payload.
type ControlPayload struct {
	Action ControlAction `json:"action"`
}

// CoreEvent is one externally-originated occurrence: the sole input to
// replay (spec §4.6). Exactly one of the kind-specific payload fields
// is populated, selected by Type, mirroring model.Node's tagged-sum
// discriminator.
type CoreEvent struct {
	ID               string        `json:"id"`
	SimTime          int64         `json:"simTime"`
	RealTimeUnixNano int64         `json:"realTimeUnixNano"`
	Type             CoreEventType `json:"type"`
	TargetNodeID     string        `json:"targetNodeId,omitempty"`
	Metadata         EventMetadata `json:"metadata"`

	TokenInjection  *TokenInjectionPayload  `json:"tokenInjection,omitempty"`
	ModelUpgrade    *ModelUpgradePayload    `json:"modelUpgrade,omitempty"`
	ExternalFeed    *ExternalFeedPayload    `json:"externalFeed,omitempty"`
	UserInteraction *UserInteractionPayload `json:"userInteraction,omitempty"`
	Control         *ControlPayload         `json:"control,omitempty"`
}

// Snapshot is a checkpoint recorded after a known prefix of a
// recording's core events, used to validate that a later replay
// reproduces identical derived state (spec §4.6 step 3) without
// requiring the engine to serialise live kernel internals: a snapshot
// is reproduced by replaying events [0, AfterEventIndex) from the
// initial model, which is itself the headline determinism guarantee
// (spec §8 invariant #5), rather than by restoring opaque state.
type Snapshot struct {
	ID              string `json:"id"`
	AfterEventIndex int    `json:"afterEventIndex"`
	SimTime         int64  `json:"simTime"`
	LogLength       int    `json:"logLength"`
	LogDigest       string `json:"logDigest"`
}

// Recording is a complete capture: the model a session started from,
// every core event applied during capture, and the snapshots taken
// along the way (spec §4.6: "{initial model, ordered list of core
// events, ordered list of snapshots}").
type Recording struct {
	SchemaVersion string          `json:"schemaVersion"`
	SessionID     string          `json:"sessionId"`
	InitialModel  *model.Scenario `json:"initialModel"`
	Events        []CoreEvent     `json:"events"`
	Snapshots     []Snapshot      `json:"snapshots"`
}

// CurrentSchemaVersion is the recording schema version this engine
// produces and accepts.
const CurrentSchemaVersion = "1.0"
