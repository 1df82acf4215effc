package kernel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/dataflow-sim/internal/config"
	"github.com/r3e-network/dataflow-sim/lib/simulation/kernel"
	"github.com/r3e-network/dataflow-sim/lib/simulation/model"
)

// iotScenario mirrors the worked example of a small sensor pipeline:
// two instant-emitting sources (temperature, humidity) feeding
// per-tick average queues, a comfort processor blending them, and a
// sink retaining the comfort readings.
func iotScenario() *model.Scenario {
	return &model.Scenario{
		Version: model.CurrentVersion,
		Seed:    11,
		Nodes: []model.Node{
			{
				NodeID: "temp_sensor", Kind: model.KindDataSource,
				DataSource: &model.DataSource{
					EmissionInterval: 1, ValueMin: 25.5, ValueMax: 25.5,
					Outputs: []model.Output{{Name: "out", DestinationNodeID: "temp_avg", DestinationInputName: "in"}},
				},
			},
			{
				NodeID: "humidity_sensor", Kind: model.KindDataSource,
				DataSource: &model.DataSource{
					EmissionInterval: 1, ValueMin: 60.2, ValueMax: 60.2,
					Outputs: []model.Output{{Name: "out", DestinationNodeID: "humidity_avg", DestinationInputName: "in"}},
				},
			},
			{
				NodeID: "temp_avg", Kind: model.KindQueue,
				Queue: &model.Queue{
					Inputs: []model.Input{{Name: "in"}}, Method: model.AggAverage, TriggerWindow: 1,
					Outputs: []model.Output{{Name: "out", DestinationNodeID: "comfort", DestinationInputName: "t"}},
				},
			},
			{
				NodeID: "humidity_avg", Kind: model.KindQueue,
				Queue: &model.Queue{
					Inputs: []model.Input{{Name: "in"}}, Method: model.AggAverage, TriggerWindow: 1,
					Outputs: []model.Output{{Name: "out", DestinationNodeID: "comfort", DestinationInputName: "h"}},
				},
			},
			{
				NodeID: "comfort", Kind: model.KindProcess,
				Process: &model.ProcessNode{
					Inputs: []model.Input{{Name: "t"}, {Name: "h"}},
					Outputs: []model.Output{{
						Name: "index", Formula: "inputs.t * 0.7 + inputs.h * 0.3",
						DestinationNodeID: "sink", DestinationInputName: "in",
					}},
				},
			},
			{
				NodeID: "sink", Kind: model.KindSink,
				Sink: &model.Sink{Inputs: []model.Input{{Name: "in"}}, RetainLast: 5},
			},
		},
	}
}

func TestIoTPipelineValidates(t *testing.T) {
	report := model.Validate(iotScenario(), model.ValidatorOptions{ReachabilityCheck: true})
	assert.True(t, report.OK(), "problems: %v", report.Problems)
}

func TestIoTPipelineComfortIndexConverges(t *testing.T) {
	k := kernel.New(iotScenario(), config.Defaults(), nil, nil, kernel.Collaborators{})
	// sources first emit at tick 1; queues, comfort and sink each take one
	// more tick, so the sink holds a token after tick 4.
	for i := 0; i < 5; i++ {
		k.Tick()
	}

	tokens := k.SinkTokens("sink")
	require.NotEmpty(t, tokens)
	want := 25.5*0.7 + 60.2*0.3
	assert.InDelta(t, want, tokens[len(tokens)-1].Value, 1e-9)
}

func TestIoTPipelineIsDeterministicAcrossRuns(t *testing.T) {
	k1 := kernel.New(iotScenario(), config.Defaults(), nil, nil, kernel.Collaborators{})
	k2 := kernel.New(iotScenario(), config.Defaults(), nil, nil, kernel.Collaborators{})
	for i := 0; i < 5; i++ {
		k1.Tick()
		k2.Tick()
	}

	e1, e2 := k1.Log().Entries(), k2.Log().Entries()
	require.Equal(t, len(e1), len(e2))
	for i := range e1 {
		assert.Equal(t, e1[i].NodeID, e2[i].NodeID)
		assert.Equal(t, e1[i].Action, e2[i].Action)
		assert.Equal(t, e1[i].Value, e2[i].Value)
	}
}

func TestDiamondConvergenceSumsBothBranches(t *testing.T) {
	scenario := &model.Scenario{
		Version: model.CurrentVersion,
		Seed:    3,
		Nodes: []model.Node{
			{
				NodeID: "root", Kind: model.KindDataSource,
				DataSource: &model.DataSource{
					EmissionInterval: 1, ValueMin: 10, ValueMax: 10,
					Outputs: []model.Output{
						{Name: "a", DestinationNodeID: "q1", DestinationInputName: "in"},
						{Name: "b", DestinationNodeID: "q2", DestinationInputName: "in"},
					},
				},
			},
			{
				NodeID: "q1", Kind: model.KindQueue,
				Queue: &model.Queue{
					Inputs: []model.Input{{Name: "in"}}, Method: model.AggSum, TriggerWindow: 1,
					Outputs: []model.Output{{Name: "out", DestinationNodeID: "final", DestinationInputName: "x"}},
				},
			},
			{
				NodeID: "q2", Kind: model.KindQueue,
				Queue: &model.Queue{
					Inputs: []model.Input{{Name: "in"}}, Method: model.AggSum, TriggerWindow: 1,
					Outputs: []model.Output{{Name: "out", DestinationNodeID: "final", DestinationInputName: "y"}},
				},
			},
			{
				NodeID: "final", Kind: model.KindProcess,
				Process: &model.ProcessNode{
					Inputs:  []model.Input{{Name: "x"}, {Name: "y"}},
					Outputs: []model.Output{{Name: "sum", Formula: "inputs.x + inputs.y", DestinationNodeID: "sink", DestinationInputName: "in"}},
				},
			},
			{
				NodeID: "sink", Kind: model.KindSink,
				Sink: &model.Sink{Inputs: []model.Input{{Name: "in"}}, RetainLast: 5},
			},
		},
	}

	k := kernel.New(scenario, config.Defaults(), nil, nil, kernel.Collaborators{})
	// root emits at tick 1, q1/q2 at 2, final at 3, sink consumes at 4.
	for i := 0; i < 5; i++ {
		k.Tick()
	}
	tokens := k.SinkTokens("sink")
	require.NotEmpty(t, tokens)
	assert.Equal(t, float64(20), tokens[len(tokens)-1].Value)
}

func TestQueueCapacityDropsExcessTokens(t *testing.T) {
	scenario := &model.Scenario{
		Version: model.CurrentVersion,
		Seed:    5,
		Nodes: []model.Node{
			{
				NodeID: "fast", Kind: model.KindDataSource,
				DataSource: &model.DataSource{
					EmissionInterval: 1, ValueMin: 1, ValueMax: 1,
					Outputs: []model.Output{{Name: "out", DestinationNodeID: "q", DestinationInputName: "in"}},
				},
			},
			{
				NodeID: "q", Kind: model.KindQueue,
				Queue: &model.Queue{
					Inputs: []model.Input{{Name: "in"}}, Method: model.AggCount,
					TriggerWindow: 100, Capacity: 1,
					Outputs: []model.Output{{Name: "out", DestinationNodeID: "sink", DestinationInputName: "in"}},
				},
			},
			{
				NodeID: "sink", Kind: model.KindSink,
				Sink: &model.Sink{Inputs: []model.Input{{Name: "in"}}, RetainLast: 5},
			},
		},
	}

	k := kernel.New(scenario, config.Defaults(), nil, nil, kernel.Collaborators{})
	// tokens emitted at ticks 1 and 2 reach q at ticks 2 and 3; the
	// second one overflows Capacity 1.
	for i := 0; i < 4; i++ {
		k.Tick()
	}

	dropped := 0
	for _, e := range k.Log().Entries() {
		if e.NodeID == "q" && string(e.Action) == "DROPPED" {
			dropped++
		}
	}
	assert.Positive(t, dropped, "expected the over-capacity queue to drop at least one token")
}
