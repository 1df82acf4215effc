// Package model defines the typed scenario description consumed by the
// simulation kernel: nodes, their typed inputs/outputs, and the V3
// scenario envelope. Nodes are modelled as a tagged sum (spec §9) via
// the Kind discriminator plus kind-specific payload structs, so that
// both the validator and the kernel can pattern-match exhaustively over
// the five node kinds.
package model

// Kind discriminates the five node variants.
type Kind string

const (
	KindDataSource Kind = "data_source"
	KindQueue      Kind = "queue"
	KindProcess    Kind = "process"
	KindFSMProcess Kind = "fsm_process"
	KindSink       Kind = "sink"
)

// AggregationMethod is the reducer a Queue applies to its window.
type AggregationMethod string

const (
	AggSum     AggregationMethod = "sum"
	AggAverage AggregationMethod = "average"
	AggCount   AggregationMethod = "count"
	AggFirst   AggregationMethod = "first"
	AggLast    AggregationMethod = "last"
)

// Position is a purely cosmetic editor coordinate, carried through for
// round-tripping the persisted scenario format.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Interface declares the required field set a token value must satisfy
// to flow across an input or output.
type Interface struct {
	Type           string   `json:"type" yaml:"type"`
	RequiredFields []string `json:"requiredFields,omitempty" yaml:"requiredFields,omitempty"`
}

// Output is a named emission point with a typed interface and a
// destination reference. DestinationNodeID/DestinationInputName are
// empty for a not-yet-wired output; the validator accepts such an
// output on every node kind and only rejects a non-empty destination
// that names no node.
type Output struct {
	Name                  string    `json:"name" yaml:"name"`
	Interface             Interface `json:"interface" yaml:"interface"`
	DestinationNodeID     string    `json:"destinationNodeId,omitempty" yaml:"destinationNodeId,omitempty"`
	DestinationInputName  string    `json:"destinationInputName,omitempty" yaml:"destinationInputName,omitempty"`
	Formula               string    `json:"formula,omitempty" yaml:"formula,omitempty"`
}

// Input is a named reception point with a typed interface.
type Input struct {
	Name      string    `json:"name" yaml:"name"`
	Interface Interface `json:"interface" yaml:"interface"`
}

// DataSource periodically emits a random value in [ValueMin, ValueMax].
type DataSource struct {
	EmissionInterval int64    `json:"emissionInterval" yaml:"emissionInterval"`
	ValueMin         float64  `json:"valueMin" yaml:"valueMin"`
	ValueMax         float64  `json:"valueMax" yaml:"valueMax"`
	Outputs          []Output `json:"outputs" yaml:"outputs"`
}

// Queue aggregates tokens received in a window and emits one result.
type Queue struct {
	Inputs         []Input           `json:"inputs" yaml:"inputs"`
	Outputs        []Output          `json:"outputs" yaml:"outputs"`
	Method         AggregationMethod `json:"aggregationMethod" yaml:"aggregationMethod"`
	TriggerWindow  int64             `json:"triggerWindowTicks" yaml:"triggerWindowTicks"`
	Formula        string            `json:"formula,omitempty" yaml:"formula,omitempty"`
	Capacity       int               `json:"capacity,omitempty" yaml:"capacity,omitempty"`
}

// ProcessNode evaluates one formula per declared output against the
// tokens popped from its inputs.
type ProcessNode struct {
	Inputs  []Input  `json:"inputs" yaml:"inputs"`
	Outputs []Output `json:"outputs" yaml:"outputs"`
}

// Sink consumes tokens and retains up to RetainLast of the most recent.
type Sink struct {
	Inputs     []Input `json:"inputs" yaml:"inputs"`
	RetainLast int     `json:"retainLast,omitempty" yaml:"retainLast,omitempty"`
}

// Node is the tagged-sum scenario node. Exactly one of the kind-specific
// payload fields is populated, selected by Kind.
type Node struct {
	NodeID      string   `json:"nodeId" yaml:"nodeId"`
	DisplayName string   `json:"displayName" yaml:"displayName"`
	Kind        Kind     `json:"type" yaml:"type"`
	Position    Position `json:"position" yaml:"position"`

	DataSource *DataSource `json:"dataSource,omitempty" yaml:"dataSource,omitempty"`
	Queue      *Queue      `json:"queue,omitempty" yaml:"queue,omitempty"`
	Process    *ProcessNode `json:"process,omitempty" yaml:"process,omitempty"`
	FSM        *FSMProcess `json:"fsm,omitempty" yaml:"fsm,omitempty"`
	Sink       *Sink       `json:"sink,omitempty" yaml:"sink,omitempty"`
}

// Scenario is the persisted V3 model: `{version: "3.0", nodes: [...]}`.
// Scenarios carrying any other version string (notably the legacy V1
// protocol) are rejected at load per the redesign flag in spec §9.
type Scenario struct {
	Version string `json:"version" yaml:"version"`
	Seed    int64  `json:"seed" yaml:"seed"`
	Nodes   []Node `json:"nodes" yaml:"nodes"`
}

// CurrentVersion is the only scenario schema version this engine accepts.
const CurrentVersion = "3.0"

// NodeByID returns the node with the given id, if present.
func (s *Scenario) NodeByID(id string) (*Node, bool) {
	for i := range s.Nodes {
		if s.Nodes[i].NodeID == id {
			return &s.Nodes[i], true
		}
	}
	return nil, false
}

// Outputs returns the outputs declared on a node, regardless of kind.
func (n *Node) Outputs() []Output {
	switch n.Kind {
	case KindDataSource:
		if n.DataSource != nil {
			return n.DataSource.Outputs
		}
	case KindQueue:
		if n.Queue != nil {
			return n.Queue.Outputs
		}
	case KindProcess:
		if n.Process != nil {
			return n.Process.Outputs
		}
	case KindFSMProcess:
		if n.FSM != nil {
			return n.FSM.Outputs
		}
	}
	return nil
}

// InputNames returns the declared input names of a node, regardless of
// kind. Data sources have none.
func (n *Node) InputNames() []string {
	var inputs []Input
	switch n.Kind {
	case KindQueue:
		if n.Queue != nil {
			inputs = n.Queue.Inputs
		}
	case KindProcess:
		if n.Process != nil {
			inputs = n.Process.Inputs
		}
	case KindFSMProcess:
		if n.FSM != nil {
			inputs = n.FSM.Inputs
		}
	case KindSink:
		if n.Sink != nil {
			inputs = n.Sink.Inputs
		}
	}
	names := make([]string, len(inputs))
	for i, in := range inputs {
		names[i] = in.Name
	}
	return names
}
