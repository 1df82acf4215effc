// Package fsm implements the enhanced finite-state-machine subsystem
// embedded in an FSMProcessNode (spec §4.4): event interpretation rules,
// the dual event/message input streams, transition evaluation, the
// action system with its seven output kinds, and the feedback loop
// manager that bounds self/external feedback with a depth limit and a
// circuit breaker.
//
// A Runtime owns exactly one node's FSM state; it never reaches across
// node boundaries itself. Cross-node effects (routing a token, a
// message, or an event to another node; calling an external API or
// email transport) are reported as Effect values for the kernel to
// apply, the same way the kernel applies every other node kind's
// outputs — this keeps Runtime pure and unit-testable without an
// import cycle back to lib/simulation/kernel.
package fsm

import "github.com/r3e-network/dataflow-sim/lib/simulation/model"

// Event is one raw occurrence fed into a node's event stream: either a
// genuinely external event (per spec §4.6, core events materialise as
// these) or a synthetic `token_received` event the kernel synthesizes
// from a token that arrived on a declared input (spec §4.4 step 2).
type Event struct {
	ID            string
	Type          string
	SourceType    string
	Data          map[string]any
	Metadata      map[string]string
	FeedbackDepth int
	ExecutionID   string
}

// Message is the typed, rule-interpreted output of event interpretation
// (spec §4.4 step 1), or a message effect produced directly by an
// action. Messages are what transitions actually match against.
type Message struct {
	ID                 string
	Type               string
	Payload            map[string]any
	GeneratingEventID  string
	GeneratingRuleName string
	FeedbackDepth      int
	ExecutionID        string
}

// APICallRequest is the action system's `api_call` output, materialised
// as data for the kernel's external HTTP client collaborator (spec §6).
type APICallRequest struct {
	ActionName string
	Target     string // templated URL or endpoint identifier
	Body       map[string]any
	ResultVars map[string]string // response field -> variable name mapping
}

// EmailRequest is the action system's `email` output (spec §6's email
// transport collaborator).
type EmailRequest struct {
	ActionName string
	To         string
	Subject    string
	Body       string
}

// EffectKind enumerates the seven action-output kinds of spec §4.4.
type EffectKind string

const (
	EffectToken    EffectKind = "token"
	EffectEvent    EffectKind = "event"
	EffectMessage  EffectKind = "message"
	EffectAPICall  EffectKind = "api_call"
	EffectLog      EffectKind = "log"
	EffectEmail    EffectKind = "email"
	EffectVariable EffectKind = "variable"
)

// Effect is one action output for the kernel to apply. Only the fields
// relevant to Kind are populated.
type Effect struct {
	Kind       EffectKind
	ActionName string

	// EffectToken
	OutputName string
	Value      any

	// EffectEvent / EffectMessage
	TargetNodeID string // empty means "self"
	Event        *Event
	Message      *Message
	Blocked      bool
	BlockReason  string

	// EffectAPICall / EffectEmail: the dispatch site (the kernel, since
	// the call itself happens outside the Runtime) is what must honour
	// onError/retryCount — buildEffect only evaluates the request's
	// payload, it never performs the call (spec §4.4).
	APICall    *APICallRequest
	Email      *EmailRequest
	OnError    model.ErrorPolicy
	RetryCount int

	// EffectLog
	LogLevel   string
	LogMessage string

	// EffectVariable
	VarScope string // "global" or "state"
	VarName  string
	VarOp    string // "set", "increment", "append"
}

// TransitionFired records that a transition was taken, for logging and
// tests (spec §4.1's requirement that every log entry carry FSM state).
type TransitionFired struct {
	From    string
	To      string
	Trigger string // the model.TriggerKind that fired
}
