package replay_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/dataflow-sim/internal/config"
	"github.com/r3e-network/dataflow-sim/lib/simulation/kernel"
	"github.com/r3e-network/dataflow-sim/lib/simulation/model"
	"github.com/r3e-network/dataflow-sim/lib/simulation/replay"
)

// diamondScenario builds the §8 "diamond convergence" fixture: one
// data source feeding two queues, each feeding a process node that
// combines them, finally draining into a sink.
func diamondScenario() *model.Scenario {
	return &model.Scenario{
		Version: model.CurrentVersion,
		Seed:    42,
		Nodes: []model.Node{
			{
				NodeID: "root", Kind: model.KindDataSource,
				DataSource: &model.DataSource{
					EmissionInterval: 100, ValueMin: 10, ValueMax: 10,
					Outputs: []model.Output{
						{Name: "out1", DestinationNodeID: "q1", DestinationInputName: "in"},
						{Name: "out2", DestinationNodeID: "q2", DestinationInputName: "in"},
					},
				},
			},
			{
				NodeID: "q1", Kind: model.KindQueue,
				Queue: &model.Queue{
					Inputs:        []model.Input{{Name: "in"}},
					Method:        model.AggSum,
					TriggerWindow: 1,
					Outputs:       []model.Output{{Name: "out", DestinationNodeID: "final", DestinationInputName: "a"}},
				},
			},
			{
				NodeID: "q2", Kind: model.KindQueue,
				Queue: &model.Queue{
					Inputs:        []model.Input{{Name: "in"}},
					Method:        model.AggSum,
					TriggerWindow: 1,
					Outputs:       []model.Output{{Name: "out", DestinationNodeID: "final", DestinationInputName: "b"}},
				},
			},
			{
				NodeID: "final", Kind: model.KindProcess,
				Process: &model.ProcessNode{
					Inputs: []model.Input{{Name: "a"}, {Name: "b"}},
					Outputs: []model.Output{
						{Name: "sum", Formula: "inputs.a + inputs.b", DestinationNodeID: "sink", DestinationInputName: "in"},
					},
				},
			},
			{
				NodeID: "sink", Kind: model.KindSink,
				Sink: &model.Sink{Inputs: []model.Input{{Name: "in"}}, RetainLast: 10},
			},
		},
	}
}

func TestValidateDiamondScenario(t *testing.T) {
	report := model.Validate(diamondScenario(), model.ValidatorOptions{})
	assert.True(t, report.OK(), "problems: %v", report.Problems)
}

func TestSessionCaptureAndReplayAreDeterministic(t *testing.T) {
	scenario := diamondScenario()
	cfg := config.Defaults()

	sess := replay.NewSession(scenario, cfg, nil, nil, kernel.Collaborators{})
	sess.Start()
	for i := 0; i < 5; i++ {
		sess.Step()
	}
	recording := sess.Recording()
	require.Len(t, recording.Events, 6)

	result, err := replay.ReplayScenario(recording, replay.Options{Config: cfg})
	require.NoError(t, err)
	require.Empty(t, result.Mismatches)
	assert.Equal(t, sess.Kernel().Time(), result.Kernel.Time())
	assert.Equal(t, sess.Kernel().Log().Len(), result.Kernel.Log().Len())

	result2, err := replay.ReplayScenario(recording, replay.Options{Config: cfg})
	require.NoError(t, err)
	require.Equal(t, len(result.Kernel.Log().Entries()), len(result2.Kernel.Log().Entries()))
	for i, e := range result.Kernel.Log().Entries() {
		assert.Equal(t, e.Action, result2.Kernel.Log().Entries()[i].Action)
		assert.Equal(t, e.NodeID, result2.Kernel.Log().Entries()[i].NodeID)
		assert.Equal(t, e.Value, result2.Kernel.Log().Entries()[i].Value)
	}
}

func TestSessionSnapshotValidatesOnReplay(t *testing.T) {
	scenario := diamondScenario()
	cfg := config.Defaults()

	sess := replay.NewSession(scenario, cfg, nil, nil, kernel.Collaborators{})
	sess.Start()
	sess.Step()
	sess.Step()
	snap := sess.Snapshot()
	sess.Step()

	recording := sess.Recording()
	require.Len(t, recording.Snapshots, 1)
	assert.Equal(t, 3, snap.AfterEventIndex)

	result, err := replay.ReplayScenario(recording, replay.Options{Config: cfg})
	require.NoError(t, err)
	assert.Empty(t, result.Mismatches)
}

func TestSessionInjectTokenIsRecordedAndReplayed(t *testing.T) {
	scenario := diamondScenario()
	cfg := config.Defaults()

	sess := replay.NewSession(scenario, cfg, nil, nil, kernel.Collaborators{})
	sess.Start()
	sess.InjectToken("q1", "in", 7.0)
	sess.Step()

	recording := sess.Recording()
	result, err := replay.ReplayScenario(recording, replay.Options{Config: cfg})
	require.NoError(t, err)
	assert.Empty(t, result.Mismatches)

	sinkTokens := result.Kernel.SinkTokens("sink")
	_ = sinkTokens // the diamond hasn't converged yet at tick 1; just assert no crash/mismatch
}

func TestSessionResetPreservesEventListButRebuildsKernel(t *testing.T) {
	scenario := diamondScenario()
	cfg := config.Defaults()

	sess := replay.NewSession(scenario, cfg, nil, nil, kernel.Collaborators{})
	sess.Start()
	sess.Step()
	sess.Step()
	beforeResetEvents := len(sess.Recording().Events)
	sess.Reset()
	assert.Equal(t, int64(0), sess.Kernel().Time())
	assert.Greater(t, len(sess.Recording().Events), beforeResetEvents)
}
