package model

import (
	"fmt"

	"github.com/r3e-network/dataflow-sim/internal/errors"
)

// ValidationReport collects every structural problem found in a
// scenario; unlike the taxonomy's other error classes, validation
// failures are fatal at load (spec §7), so the loader is expected to
// check Err() before proceeding.
type ValidationReport struct {
	Problems []string
}

func (r *ValidationReport) add(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// OK reports whether the scenario is free of structural problems.
func (r *ValidationReport) OK() bool { return len(r.Problems) == 0 }

// Err returns a single EngineError summarizing the report, or nil if OK.
func (r *ValidationReport) Err() error {
	if r.OK() {
		return nil
	}
	return errors.New(errors.CodeValidation, errors.SeverityFatal, fmt.Sprintf("%d validation problem(s): %v", len(r.Problems), r.Problems))
}

// ValidatorOptions toggles optional checks. ReachabilityCheck re-enables
// the commented-out check from the original source (spec §9 open
// question #3): every input declared on a process-family node must be
// the destination of some other node's output.
type ValidatorOptions struct {
	ReachabilityCheck bool
}

// Validate performs full structural validation of a scenario: dangling
// destination references, valueMin > valueMax, FSM initial/transition
// state references, and duplicated/dropped input names.
func Validate(s *Scenario, opts ValidatorOptions) *ValidationReport {
	report := &ValidationReport{}

	if s.Version != CurrentVersion {
		report.add("unsupported scenario version %q (only %q is accepted)", s.Version, CurrentVersion)
		return report
	}

	ids := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.NodeID == "" {
			report.add("node with empty nodeId")
			continue
		}
		if ids[n.NodeID] {
			report.add("duplicate node id %q", n.NodeID)
		}
		ids[n.NodeID] = true
	}

	destinations := make(map[string]bool)

	checkOutputs := func(nodeID string, outs []Output) {
		seen := map[string]bool{}
		for _, o := range outs {
			if o.Name == "" {
				report.add("node %q: output with empty name", nodeID)
			}
			if seen[o.Name] {
				report.add("node %q: duplicate output name %q", nodeID, o.Name)
			}
			seen[o.Name] = true

			if o.DestinationNodeID == "" {
				continue
			}
			if !ids[o.DestinationNodeID] {
				report.add("node %q output %q: dangling destination node %q", nodeID, o.Name, o.DestinationNodeID)
				continue
			}
			dest, _ := s.NodeByID(o.DestinationNodeID)
			found := false
			for _, name := range dest.InputNames() {
				if name == o.DestinationInputName {
					found = true
					break
				}
			}
			if !found {
				report.add("node %q output %q: destination %q has no input %q", nodeID, o.Name, o.DestinationNodeID, o.DestinationInputName)
			}
			destinations[o.DestinationNodeID+"/"+o.DestinationInputName] = true
		}
	}

	checkInputs := func(nodeID string, names []string) {
		seen := map[string]bool{}
		for _, name := range names {
			if name == "" {
				report.add("node %q: input with empty name", nodeID)
			}
			if seen[name] {
				report.add("node %q: duplicate input name %q", nodeID, name)
			}
			seen[name] = true
		}
	}

	for _, n := range s.Nodes {
		switch n.Kind {
		case KindDataSource:
			if n.DataSource == nil {
				report.add("node %q: kind data_source missing dataSource payload", n.NodeID)
				continue
			}
			if n.DataSource.ValueMin > n.DataSource.ValueMax {
				report.add("node %q: valueMin (%v) > valueMax (%v)", n.NodeID, n.DataSource.ValueMin, n.DataSource.ValueMax)
			}
			if n.DataSource.EmissionInterval <= 0 {
				report.add("node %q: emissionInterval must be positive", n.NodeID)
			}
			checkOutputs(n.NodeID, n.DataSource.Outputs)

		case KindQueue:
			if n.Queue == nil {
				report.add("node %q: kind queue missing queue payload", n.NodeID)
				continue
			}
			checkInputs(n.NodeID, n.InputNames())
			checkOutputs(n.NodeID, n.Queue.Outputs)
			switch n.Queue.Method {
			case AggSum, AggAverage, AggCount, AggFirst, AggLast:
			default:
				report.add("node %q: unknown aggregation method %q", n.NodeID, n.Queue.Method)
			}
			if n.Queue.TriggerWindow <= 0 {
				report.add("node %q: triggerWindowTicks must be positive", n.NodeID)
			}
			if n.Queue.Capacity < 0 {
				report.add("node %q: negative capacity", n.NodeID)
			}

		case KindProcess:
			if n.Process == nil {
				report.add("node %q: kind process missing process payload", n.NodeID)
				continue
			}
			checkInputs(n.NodeID, n.InputNames())
			checkOutputs(n.NodeID, n.Process.Outputs)
			for _, o := range n.Process.Outputs {
				if o.Formula == "" {
					report.add("node %q output %q: process outputs require a formula", n.NodeID, o.Name)
				}
			}

		case KindFSMProcess:
			if n.FSM == nil {
				report.add("node %q: kind fsm_process missing fsm payload", n.NodeID)
				continue
			}
			checkInputs(n.NodeID, n.InputNames())
			checkOutputs(n.NodeID, n.FSM.Outputs)
			validateFSM(n.NodeID, n.FSM, report)

		case KindSink:
			if n.Sink == nil {
				report.add("node %q: kind sink missing sink payload", n.NodeID)
				continue
			}
			checkInputs(n.NodeID, n.InputNames())

		default:
			report.add("node %q: unknown kind %q", n.NodeID, n.Kind)
		}
	}

	if opts.ReachabilityCheck {
		for _, n := range s.Nodes {
			switch n.Kind {
			case KindProcess, KindFSMProcess, KindQueue, KindSink:
				for _, name := range n.InputNames() {
					if !destinations[n.NodeID+"/"+name] {
						report.add("node %q input %q: unreachable (no output targets it)", n.NodeID, name)
					}
				}
			}
		}
	}

	return report
}

func validateFSM(nodeID string, fsm *FSMProcess, report *ValidationReport) {
	states := make(map[string]bool, len(fsm.States))
	for _, st := range fsm.States {
		if states[st.Name] {
			report.add("node %q: duplicate FSM state %q", nodeID, st.Name)
		}
		states[st.Name] = true
	}
	if fsm.InitialState == "" || !states[fsm.InitialState] {
		report.add("node %q: initialState %q is not in states", nodeID, fsm.InitialState)
	}
	for i, t := range fsm.Transitions {
		if !states[t.From] {
			report.add("node %q: transition[%d] references unknown from-state %q", nodeID, i, t.From)
		}
		if !states[t.To] {
			report.add("node %q: transition[%d] references unknown to-state %q", nodeID, i, t.To)
		}
		switch t.Trigger {
		case TriggerMessage, TriggerCondition, TriggerTimer:
		default:
			report.add("node %q: transition[%d] has unknown trigger kind %q", nodeID, i, t.Trigger)
		}
		if t.Trigger == TriggerTimer && t.TimeoutTicks <= 0 {
			report.add("node %q: transition[%d] is timer-triggered but timeoutTicks <= 0", nodeID, i)
		}
	}
}
