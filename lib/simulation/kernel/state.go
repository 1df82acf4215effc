package kernel

// NodeState is the coarse operational state a node cycles through
// independently of any FSM subsystem it may own (spec §4.1's "embedded
// node state machine"). Every activity-log entry carries the state at
// the moment of the action so visualisations can colour-code history.
type NodeState string

const (
	SourceIdle       NodeState = "source_idle"
	SourceGenerating NodeState = "source_generating"
	SourceEmitting   NodeState = "source_emitting"
	SourceWaiting    NodeState = "source_waiting"

	QueueIdle         NodeState = "queue_idle"
	QueueAccumulating NodeState = "queue_accumulating"
	QueueProcessing   NodeState = "queue_processing"
	QueueEmitting     NodeState = "queue_emitting"

	ProcessIdle       NodeState = "process_idle"
	ProcessCollecting NodeState = "process_collecting"
	ProcessReady      NodeState = "process_ready"
	ProcessEvaluating NodeState = "process_evaluating"
	ProcessOutputting NodeState = "process_outputting"

	SinkIdle       NodeState = "sink_idle"
	SinkProcessing NodeState = "sink_processing"

	FSMIdle       NodeState = "fsm_idle"
	FSMProcessing NodeState = "fsm_processing"
	FSMCollecting NodeState = "fsm_collecting"
	FSMEvaluating NodeState = "fsm_evaluating"
	FSMActing     NodeState = "fsm_acting"
)
