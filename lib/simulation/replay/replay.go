package replay

import (
	"github.com/r3e-network/dataflow-sim/internal/config"
	"github.com/r3e-network/dataflow-sim/internal/logging"
	"github.com/r3e-network/dataflow-sim/lib/simulation/fsm"
	"github.com/r3e-network/dataflow-sim/lib/simulation/kernel"
	"github.com/r3e-network/dataflow-sim/lib/simulation/model"
	"github.com/r3e-network/dataflow-sim/lib/simulation/token"
)

// Options configures a replay run: the same ambient collaborators a
// live Session would take, plus an optional model substitution used by
// CompareScenarios's "model B" leg.
type Options struct {
	Logger        *logging.Logger
	Metrics       *kernel.Metrics
	Collaborators kernel.Collaborators
	Config        config.KernelDefaults

	// ModelOverride, if set, replaces recording.InitialModel as the
	// model core events are replayed against (spec §4.6's
	// compareScenarios: "replays ... again against B").
	ModelOverride *model.Scenario
}

// SnapshotMismatch reports a captured snapshot whose recorded digest
// did not match the state reproduced by replay at the same point —
// a violation of spec §8 invariant #5 if it is ever non-empty.
type SnapshotMismatch struct {
	SnapshotID string `json:"snapshotId"`
	Field      string `json:"field"`
	Expected   any    `json:"expected"`
	Actual     any    `json:"actual"`
}

// Result is the outcome of a replay: the rebuilt kernel (whose Log()
// holds the fully-reproduced derived entries) and any snapshot
// mismatches found along the way.
type Result struct {
	Kernel     *kernel.Kernel
	Mismatches []SnapshotMismatch
}

// ReplayScenario reconstructs a kernel from recording.InitialModel (or
// opts.ModelOverride) and replays every core event in order, optionally
// validating against recording.Snapshots (spec §4.6 steps 1-3).
func ReplayScenario(recording *Recording, opts Options) (*Result, error) {
	initial := recording.InitialModel
	if opts.ModelOverride != nil {
		initial = opts.ModelOverride
	}
	k := kernel.New(initial, opts.Config, opts.Logger, opts.Metrics, opts.Collaborators)

	var mismatches []SnapshotMismatch
	snapIdx := 0
	for i, ev := range recording.Events {
		k = applyCoreEvent(k, initial, opts, ev)

		for snapIdx < len(recording.Snapshots) && recording.Snapshots[snapIdx].AfterEventIndex == i+1 {
			snap := recording.Snapshots[snapIdx]
			snapIdx++
			if opts.ModelOverride != nil {
				// a substituted model is expected to diverge; snapshot
				// validation only applies to a same-model replay.
				continue
			}
			if got := k.Log().Len(); got != snap.LogLength {
				mismatches = append(mismatches, SnapshotMismatch{SnapshotID: snap.ID, Field: "logLength", Expected: snap.LogLength, Actual: got})
			}
			if got := k.Time(); got != snap.SimTime {
				mismatches = append(mismatches, SnapshotMismatch{SnapshotID: snap.ID, Field: "simTime", Expected: snap.SimTime, Actual: got})
			}
			if got := logDigest(k.Log().Entries()); got != snap.LogDigest {
				mismatches = append(mismatches, SnapshotMismatch{SnapshotID: snap.ID, Field: "logDigest", Expected: snap.LogDigest, Actual: got})
			}
		}
	}
	return &Result{Kernel: k, Mismatches: mismatches}, nil
}

// applyCoreEvent applies one core event's effect, mirroring exactly
// what the live Session did when it was first captured, and returns
// the kernel to continue replaying against (a fresh instance for
// ControlReset, the same instance otherwise).
func applyCoreEvent(k *kernel.Kernel, initial *model.Scenario, opts Options, ev CoreEvent) *kernel.Kernel {
	switch ev.Type {
	case EventSimulationStart:
		// marker only; the kernel is already freshly constructed.

	case EventTimerTick:
		k.Tick()

	case EventManualTokenInjection:
		if p := ev.TokenInjection; p != nil {
			k.InjectToken(ev.TargetNodeID, p.InputName, p.Value)
		}

	case EventModelUpgrade:
		if p := ev.ModelUpgrade; p != nil && p.Scenario != nil {
			k.UpgradeModel(p.Scenario)
		}

	case EventExternalDataFeedArrival:
		if p := ev.ExternalFeed; p != nil {
			k.InjectEvent(ev.TargetNodeID, fsm.Event{
				ID: ev.ID, Type: "external_feed_arrival", SourceType: p.FeedName,
				Data: map[string]any{"input": p.InputName, "value": p.Value, "feed": p.FeedName},
			})
		}

	case EventUserInteraction:
		if p := ev.UserInteraction; p != nil {
			k.Log().Append(token.Entry{
				SimTime: k.Time(), NodeID: "user", Action: token.ActionControl,
				Value: map[string]any{"category": p.Category, "details": p.Details},
			})
		}

	case EventSimulationControl:
		if p := ev.Control; p != nil {
			switch p.Action {
			case ControlStep:
				k.Tick()
			case ControlReset:
				return kernel.New(initial, opts.Config, opts.Logger, opts.Metrics, opts.Collaborators)
			}
		}
		// play/pause carry no additional derived state of their own
		// during replay: the timer_tick events a live Play() loop
		// recorded already advance the kernel.
	}
	return k
}
