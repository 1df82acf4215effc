// Package kernel implements the simulation kernel of spec §4.1: per-tick
// scheduling, token creation and routing, buffering, aggregation and
// formula-based transformation, and the embedded per-node operational
// state machine. FSMProcessNode's richer finite-state subsystem is
// delegated to lib/simulation/fsm; the kernel only owns routing tokens
// and events to and from it.
package kernel

import (
	"fmt"
	"sort"
	"time"

	"github.com/r3e-network/dataflow-sim/internal/config"
	"github.com/r3e-network/dataflow-sim/internal/logging"
	"github.com/r3e-network/dataflow-sim/lib/simulation/fsm"
	"github.com/r3e-network/dataflow-sim/lib/simulation/model"
	"github.com/r3e-network/dataflow-sim/lib/simulation/script"
	"github.com/r3e-network/dataflow-sim/lib/simulation/token"
	"github.com/sirupsen/logrus"
)

type dsNodeState struct {
	lastEmission int64
	rnd          *seededRand
}

type queueNodeState struct {
	window         []token.Token
	lastAggregation int64
}

type sinkNodeState struct {
	count    int64
	retained []token.Token
}

// Kernel is the deterministic dataflow simulation kernel. A single
// instance owns the simulation state (node states, buffers, log) for
// one scenario run; tokens are owned by whichever buffer they currently
// occupy, transferring on routing (spec §3's ownership model).
type Kernel struct {
	scenario *model.Scenario
	log      *token.Log
	buf      *buffers
	logger   *logging.Logger
	metrics  *Metrics
	cfg      config.KernelDefaults
	collab   Collaborators
	scripts  *script.Engine

	time     int64
	tokenSeq uint64

	dsState    map[string]*dsNodeState
	queueState map[string]*queueNodeState
	sinkState  map[string]*sinkNodeState
	fsmRuntime map[string]*fsm.Runtime
	fsmRand    map[string]*seededRand
	fsmSeq     map[string]*uint64
	opState    map[string]NodeState

	feedback *fsm.FeedbackManager

	genLevel        map[string]int
	ultimateSources map[string][]string
}

// New constructs a Kernel for scenario, assumed already structurally
// valid (model.Validate is the loader's responsibility, not the
// kernel's — spec §7 treats validation errors as fatal-at-load, a
// concern the kernel never re-checks).
func New(scenario *model.Scenario, cfg config.KernelDefaults, logger *logging.Logger, metrics *Metrics, collab Collaborators) *Kernel {
	if logger == nil {
		logger = logging.NewDefault("kernel")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	k := &Kernel{
		scenario:        scenario,
		log:             token.NewLog(),
		buf:             newBuffers(),
		logger:          logger,
		metrics:         metrics,
		cfg:             cfg,
		collab:          collab,
		scripts:         script.New(),
		dsState:         map[string]*dsNodeState{},
		queueState:      map[string]*queueNodeState{},
		sinkState:       map[string]*sinkNodeState{},
		fsmRuntime:      map[string]*fsm.Runtime{},
		fsmRand:         map[string]*seededRand{},
		fsmSeq:          map[string]*uint64{},
		opState:         map[string]NodeState{},
		genLevel:        map[string]int{},
		ultimateSources: map[string][]string{},
		feedback: fsm.NewFeedbackManager(fsm.FeedbackConfig{
			MaxDepth:         cfg.FeedbackMaxDepth,
			CircuitThreshold: cfg.CircuitThreshold,
			CircuitWindow:    time.Duration(cfg.CircuitWindowSecs) * time.Second,
			CircuitCooldown:  time.Duration(cfg.CircuitCooldownSecs) * time.Second,
		}),
	}

	for i := range scenario.Nodes {
		n := &scenario.Nodes[i]
		switch n.Kind {
		case model.KindDataSource:
			k.dsState[n.NodeID] = &dsNodeState{rnd: newSeededRand(scenario.Seed, n.NodeID)}
			k.opState[n.NodeID] = SourceIdle
		case model.KindQueue:
			k.queueState[n.NodeID] = &queueNodeState{}
			k.opState[n.NodeID] = QueueIdle
		case model.KindProcess:
			k.opState[n.NodeID] = ProcessIdle
		case model.KindFSMProcess:
			k.fsmRuntime[n.NodeID] = fsm.New(n.NodeID, n.FSM, fsm.Deps{AI: collab.AI, Script: k.scripts})
			k.fsmRand[n.NodeID] = newSeededRand(scenario.Seed, n.NodeID)
			var seq uint64
			k.fsmSeq[n.NodeID] = &seq
			k.opState[n.NodeID] = FSMIdle
		case model.KindSink:
			k.sinkState[n.NodeID] = &sinkNodeState{}
			k.opState[n.NodeID] = SinkIdle
		}
	}
	return k
}

// Log exposes the global activity log for lineage/replay queries.
func (k *Kernel) Log() *token.Log { return k.log }

// Time returns the current simulation tick.
func (k *Kernel) Time() int64 { return k.time }

// FSMState returns the declared FSM state name of an FSMProcessNode,
// for tests and host-program introspection.
func (k *Kernel) FSMState(nodeID string) (string, bool) {
	rt, ok := k.fsmRuntime[nodeID]
	if !ok {
		return "", false
	}
	return rt.State(), true
}

// SinkTokens returns the most recently retained tokens of a Sink, most
// recent last.
func (k *Kernel) SinkTokens(nodeID string) []token.Token {
	st, ok := k.sinkState[nodeID]
	if !ok {
		return nil
	}
	out := make([]token.Token, len(st.retained))
	copy(out, st.retained)
	return out
}

// InjectToken materialises a token owned by node "user" and routes it
// to the named node/input, used by the replay engine's
// manual_input_injection core event (spec §4.6).
func (k *Kernel) InjectToken(nodeID, inputName string, value any) token.Token {
	tok := k.newToken("user", value)
	k.recordGenesis(tok, nil)
	k.appendEntry(token.Entry{
		SimTime: k.time, NodeID: "user", Action: token.ActionCreated,
		Value: value, TokenID: tok.ID, NodeState: string(SourceEmitting),
		Lineage: &token.LineageMetadata{GenerationLevel: 0},
	})
	k.buf.route(nodeID, inputName, tok)
	return tok
}

// InjectEvent delivers an externally-sourced event directly into an
// FSMProcessNode's event stream (spec §4.6's external-data feed
// arrival / user interaction core events).
func (k *Kernel) InjectEvent(nodeID string, ev fsm.Event) {
	if rt, ok := k.fsmRuntime[nodeID]; ok {
		rt.PushEvent(ev)
	}
}

// UpgradeModel atomically replaces the node definitions of the running
// scenario (spec §4.6's model_upgrade core event). Node identifiers and
// kinds are assumed unchanged; only kind-specific payloads are swapped.
func (k *Kernel) UpgradeModel(newScenario *model.Scenario) {
	k.scenario = newScenario
	for i := range newScenario.Nodes {
		n := &newScenario.Nodes[i]
		if n.Kind == model.KindFSMProcess {
			k.fsmRuntime[n.NodeID] = fsm.New(n.NodeID, n.FSM, fsm.Deps{AI: k.collab.AI, Script: k.scripts})
			if _, ok := k.fsmRand[n.NodeID]; !ok {
				k.fsmRand[n.NodeID] = newSeededRand(newScenario.Seed, n.NodeID)
				var seq uint64
				k.fsmSeq[n.NodeID] = &seq
			}
		}
	}
}

// Tick advances the simulation by exactly one discrete tick. Every node
// is processed against the buffer/FSM state left by the previous tick;
// new tokens/effects are staged and become visible only once every node
// has been processed (spec §4.1's staged-commit pattern).
func (k *Kernel) Tick() {
	for i := range k.scenario.Nodes {
		n := &k.scenario.Nodes[i]
		switch n.Kind {
		case model.KindDataSource:
			k.processDataSource(n)
		case model.KindQueue:
			k.processQueue(n)
		case model.KindProcess:
			k.processProcess(n)
		case model.KindFSMProcess:
			k.processFSM(n)
		case model.KindSink:
			k.processSink(n)
		}
	}
	k.buf.commit()
	k.time++
	k.metrics.TicksProcessed.Inc()
}

func (k *Kernel) setState(nodeID string, s NodeState) { k.opState[nodeID] = s }

func (k *Kernel) nextTokenID() string {
	k.tokenSeq++
	return fmt.Sprintf("tok-%d", k.tokenSeq)
}

func (k *Kernel) newToken(originNodeID string, value any) token.Token {
	return token.Token{ID: k.nextTokenID(), Value: value, CreatedAt: k.time, OriginNodeID: originNodeID}
}

// recordGenesis updates the incremental lineage bookkeeping: a token
// with no sources is its own ultimate source at level 0; a derived
// token's level is 1 + max(source level) and its ultimate sources are
// the union of its sources' ultimate sources (spec invariants #1, #2).
func (k *Kernel) recordGenesis(tok token.Token, sources []token.Token) {
	if len(sources) == 0 {
		k.genLevel[tok.ID] = 0
		k.ultimateSources[tok.ID] = []string{tok.ID}
		return
	}
	maxLevel := 0
	union := map[string]bool{}
	for _, s := range sources {
		if lvl := k.genLevel[s.ID]; lvl > maxLevel {
			maxLevel = lvl
		}
		for _, u := range k.ultimateSources[s.ID] {
			union[u] = true
		}
	}
	ult := make([]string, 0, len(union))
	for u := range union {
		ult = append(ult, u)
	}
	sort.Strings(ult)
	k.genLevel[tok.ID] = maxLevel + 1
	k.ultimateSources[tok.ID] = ult
}

func (k *Kernel) sourceSummaries(sources []token.Token) []token.SourceSummary {
	out := make([]token.SourceSummary, len(sources))
	for i, s := range sources {
		out[i] = token.SourceSummary{
			ID:              s.ID,
			Origin:          s.OriginNodeID,
			OriginalValue:   s.Value,
			CreationTime:    s.CreatedAt,
			LineageLevel:    k.genLevel[s.ID],
			UltimateSources: k.ultimateSources[s.ID],
		}
	}
	return out
}

func (k *Kernel) sourceIDs(sources []token.Token) []string {
	ids := make([]string, len(sources))
	for i, s := range sources {
		ids[i] = s.ID
	}
	return ids
}

func (k *Kernel) appendEntry(e token.Entry) uint64 { return k.log.Append(e) }

// emit routes tok to out's destination, if wired; a dangling output is
// silently not a routing_error by itself (the validator already
// rejects genuinely dangling wiring) but a destination that vanished
// after a model upgrade is recorded as one.
func (k *Kernel) emit(tok token.Token, out model.Output) {
	if out.DestinationNodeID == "" {
		return
	}
	if _, ok := k.scenario.NodeByID(out.DestinationNodeID); !ok {
		k.appendEntry(token.Entry{
			SimTime: k.time, NodeID: out.DestinationNodeID, Action: token.ActionRoutingError,
			TokenID: tok.ID, Error: fmt.Sprintf("destination node %q no longer exists", out.DestinationNodeID),
			NodeState: string(SourceIdle),
		})
		k.metrics.NodeErrors.WithLabelValues(out.DestinationNodeID).Inc()
		return
	}
	k.buf.route(out.DestinationNodeID, out.DestinationInputName, tok)
}

func (k *Kernel) appendError(n *model.Node, state NodeState, err error) {
	k.logger.Err(err, "node processing error", logrus.Fields{"node_id": n.NodeID})
	k.appendEntry(token.Entry{
		SimTime: k.time, NodeID: n.NodeID, Action: token.ActionError,
		Error: err.Error(), NodeState: string(state),
	})
	k.metrics.NodeErrors.WithLabelValues(n.NodeID).Inc()
}
