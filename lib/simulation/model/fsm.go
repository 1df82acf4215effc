package model

// FSMProcess is the declarative finite-state machine embedded in an
// FSMProcessNode: states, transitions, variables, and the node's
// ordinary token inputs/outputs (tokens feed the FSM via guards and
// actions per spec §4.1).
type FSMProcess struct {
	Inputs       []Input        `json:"inputs" yaml:"inputs"`
	Outputs      []Output       `json:"outputs" yaml:"outputs"`
	States       []State        `json:"states" yaml:"states"`
	InitialState string         `json:"initialState" yaml:"initialState"`
	Transitions  []Transition   `json:"transitions" yaml:"transitions"`
	Variables    map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
	Rules        []Rule         `json:"interpretationRules,omitempty" yaml:"interpretationRules,omitempty"`
}

// State declares one FSM state plus its entry/exit actions.
type State struct {
	Name          string   `json:"name" yaml:"name"`
	OnEntry       []Action `json:"onEntry,omitempty" yaml:"onEntry,omitempty"`
	OnExit        []Action `json:"onExit,omitempty" yaml:"onExit,omitempty"`
}

// TriggerKind distinguishes the three transition trigger flavours of
// spec §4.4: message-triggered, condition-triggered, and timer-triggered.
type TriggerKind string

const (
	TriggerMessage   TriggerKind = "message"
	TriggerCondition TriggerKind = "condition"
	TriggerTimer     TriggerKind = "timer"
)

// Transition is an FSM edge. Guard and Condition are formula source
// text evaluated by the formula package; TimeoutTicks is only
// meaningful for TriggerKind == TriggerTimer.
type Transition struct {
	From         string      `json:"from" yaml:"from"`
	To           string      `json:"to" yaml:"to"`
	Trigger      TriggerKind `json:"trigger" yaml:"trigger"`
	MessageType  string      `json:"messageType,omitempty" yaml:"messageType,omitempty"`
	Guard        string      `json:"guard,omitempty" yaml:"guard,omitempty"`
	Condition    string      `json:"condition,omitempty" yaml:"condition,omitempty"`
	TimeoutTicks int64       `json:"timeoutTicks,omitempty" yaml:"timeoutTicks,omitempty"`
}

// ActionOutputKind enumerates the seven output types an action may
// produce, per spec §4.4.
type ActionOutputKind string

const (
	OutToken    ActionOutputKind = "token"
	OutEvent    ActionOutputKind = "event"
	OutMessage  ActionOutputKind = "message"
	OutAPICall  ActionOutputKind = "api_call"
	OutLog      ActionOutputKind = "log"
	OutEmail    ActionOutputKind = "email"
	OutVariable ActionOutputKind = "variable"
)

// ErrorPolicy is the onError behaviour for a failing action output.
type ErrorPolicy string

const (
	OnErrorContinue ErrorPolicy = "continue"
	OnErrorStop     ErrorPolicy = "stop"
	OnErrorRetry    ErrorPolicy = "retry"
)

// ActionOutput is one effect an action produces.
type ActionOutput struct {
	Kind        ActionOutputKind `json:"kind" yaml:"kind"`
	Condition   string           `json:"condition,omitempty" yaml:"condition,omitempty"`
	Target      string           `json:"target,omitempty" yaml:"target,omitempty"` // output name, node id, or variable name
	Template    string            `json:"template,omitempty" yaml:"template,omitempty"`
	Formula     string           `json:"formula,omitempty" yaml:"formula,omitempty"`
	VarScope    string           `json:"varScope,omitempty" yaml:"varScope,omitempty"` // "global" or "state"
	VarOp       string           `json:"varOp,omitempty" yaml:"varOp,omitempty"`       // "set", "increment", "append"
	LogLevel    string           `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	OnError     ErrorPolicy      `json:"onError,omitempty" yaml:"onError,omitempty"`
	RetryCount  int              `json:"retryCount,omitempty" yaml:"retryCount,omitempty"`
	DelayTicks  int64            `json:"delayTicks,omitempty" yaml:"delayTicks,omitempty"`
}

// Action is a named group of outputs executed together on state
// entry/exit.
type Action struct {
	Name       string         `json:"name" yaml:"name"`
	DelayTicks int64          `json:"delayTicks,omitempty" yaml:"delayTicks,omitempty"`
	Outputs    []ActionOutput `json:"outputs" yaml:"outputs"`
}

// InterpretationMethod is one of the five ways an interpretation Rule
// turns a raw event into messages.
type InterpretationMethod string

const (
	InterpretPattern     InterpretationMethod = "pattern"
	InterpretFormula     InterpretationMethod = "formula"
	InterpretAI          InterpretationMethod = "ai"
	InterpretScript      InterpretationMethod = "script"
	InterpretPassthrough InterpretationMethod = "passthrough"
)

// Rule matches raw events to producible messages.
type Rule struct {
	Name            string                `json:"name" yaml:"name"`
	Priority        int                   `json:"priority" yaml:"priority"`
	EventType       string                `json:"eventType,omitempty" yaml:"eventType,omitempty"`
	SourceType      string                `json:"sourceType,omitempty" yaml:"sourceType,omitempty"`
	Pattern         string                `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	MetadataEquals  map[string]string     `json:"metadataEquals,omitempty" yaml:"metadataEquals,omitempty"`
	Method          InterpretationMethod  `json:"method" yaml:"method"`
	MessageType     string                `json:"messageType" yaml:"messageType"`
	FieldMapping    map[string]string     `json:"fieldMapping,omitempty" yaml:"fieldMapping,omitempty"`
	Formula         string                `json:"formula,omitempty" yaml:"formula,omitempty"`
	Script          string                `json:"script,omitempty" yaml:"script,omitempty"`
	ConfidenceFloor float64               `json:"confidenceFloor,omitempty" yaml:"confidenceFloor,omitempty"`
}
