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

// comfortScenario builds a minimal version of the §8 IoT-pipeline-style
// fixture: two sources, a comfort processor that blends them with a
// configurable weight, and a sink.
func comfortScenario(tempWeight, humidityWeight float64) *model.Scenario {
	return &model.Scenario{
		Version: model.CurrentVersion,
		Seed:    7,
		Nodes: []model.Node{
			{
				NodeID: "temp", Kind: model.KindDataSource,
				DataSource: &model.DataSource{
					EmissionInterval: 1, ValueMin: 25.5, ValueMax: 25.5,
					Outputs: []model.Output{{Name: "out", DestinationNodeID: "comfort", DestinationInputName: "t"}},
				},
			},
			{
				NodeID: "humidity", Kind: model.KindDataSource,
				DataSource: &model.DataSource{
					EmissionInterval: 1, ValueMin: 60.2, ValueMax: 60.2,
					Outputs: []model.Output{{Name: "out", DestinationNodeID: "comfort", DestinationInputName: "h"}},
				},
			},
			{
				NodeID: "comfort", Kind: model.KindProcess,
				Process: &model.ProcessNode{
					Inputs: []model.Input{{Name: "t"}, {Name: "h"}},
					Outputs: []model.Output{{
						Name:              "out",
						Formula:           formulaFor(tempWeight, humidityWeight),
						DestinationNodeID: "sink", DestinationInputName: "in",
					}},
				},
			},
			{
				NodeID: "sink", Kind: model.KindSink,
				Sink: &model.Sink{Inputs: []model.Input{{Name: "in"}}, RetainLast: 10},
			},
		},
	}
}

func formulaFor(tw, hw float64) string {
	if tw == 0.7 {
		return "inputs.t * 0.7 + inputs.h * 0.3"
	}
	return "inputs.t * 0.5 + inputs.h * 0.5"
}

func TestCompareScenariosFindsMinorValueDiffNoMajorEventCountDiff(t *testing.T) {
	modelA := comfortScenario(0.7, 0.3)
	modelB := comfortScenario(0.5, 0.5)
	cfg := config.Defaults()

	sess := replay.NewSession(modelA, cfg, nil, nil, kernel.Collaborators{})
	sess.Start()
	sess.Step()
	sess.Step()
	sess.Step() // sources emit at tick 1; comfort evaluates at tick 2
	recording := sess.Recording()

	diffs, err := replay.CompareScenarios(recording, modelB, replay.Options{Config: cfg})
	require.NoError(t, err)

	var sawMinorValueDiff, sawMajorEventCount bool
	for _, d := range diffs {
		if d.Significance == replay.SignificanceMinor && d.Field == "comfort.value" {
			sawMinorValueDiff = true
		}
		if d.Significance == replay.SignificanceMajor && d.Field == "event_count" {
			sawMajorEventCount = true
		}
	}
	assert.True(t, sawMinorValueDiff, "expected a minor diff on comfort_processor's output value, got %+v", diffs)
	assert.False(t, sawMajorEventCount, "model substitution alone should not change event count")
}

func TestCompareScenariosIdenticalModelsYieldNoDiffs(t *testing.T) {
	modelA := comfortScenario(0.7, 0.3)
	cfg := config.Defaults()

	sess := replay.NewSession(modelA, cfg, nil, nil, kernel.Collaborators{})
	sess.Start()
	sess.Step()
	sess.Step()
	recording := sess.Recording()

	diffs, err := replay.CompareScenarios(recording, modelA, replay.Options{Config: cfg})
	require.NoError(t, err)
	assert.Empty(t, diffs)
}
