package replay

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/dataflow-sim/internal/config"
	"github.com/r3e-network/dataflow-sim/internal/logging"
	"github.com/r3e-network/dataflow-sim/lib/simulation/fsm"
	"github.com/r3e-network/dataflow-sim/lib/simulation/kernel"
	"github.com/r3e-network/dataflow-sim/lib/simulation/model"
	"github.com/r3e-network/dataflow-sim/lib/simulation/token"
)

// Session is a live capture: it drives a Kernel through the capture
// protocol of spec §6 (start, injectToken, upgradeModel, step, play,
// pause, reset), recording CoreEvents so the whole run can later be
// replayed or compared. Each call records one CoreEvent, except Play(n),
// which records one timer_tick per tick it advances and no event for
// the call itself. Session identifiers are
// minted with google/uuid (spec's ambient-stack note: these are not
// part of the deterministic replay surface, unlike token/log-entry
// identifiers).
type Session struct {
	mu sync.Mutex

	sessionID    string
	initialModel *model.Scenario
	cfg          config.KernelDefaults
	logger       *logging.Logger
	metrics      *kernel.Metrics
	collab       kernel.Collaborators

	kernel  *kernel.Kernel
	events  []CoreEvent
	snaps   []Snapshot
	seq     uint64
	playing bool

	now func() time.Time // injectable for deterministic-looking tests
}

// NewSession starts a fresh capture from initialModel.
func NewSession(initialModel *model.Scenario, cfg config.KernelDefaults, logger *logging.Logger, metrics *kernel.Metrics, collab kernel.Collaborators) *Session {
	return &Session{
		sessionID:    uuid.NewString(),
		initialModel: initialModel,
		cfg:          cfg,
		logger:       logger,
		metrics:      metrics,
		collab:       collab,
		kernel:       kernel.New(initialModel, cfg, logger, metrics, collab),
		now:          time.Now,
	}
}

// Kernel exposes the live kernel for introspection (sink contents, FSM
// state, lineage queries) between capture calls.
func (s *Session) Kernel() *kernel.Kernel { return s.kernel }

// SessionID returns the session's identifier.
func (s *Session) SessionID() string { return s.sessionID }

func (s *Session) newEvent(t CoreEventType, targetNodeID string) CoreEvent {
	s.seq++
	return CoreEvent{
		ID:               uuid.NewString(),
		SimTime:          s.kernel.Time(),
		RealTimeUnixNano: s.now().UnixNano(),
		Type:             t,
		TargetNodeID:     targetNodeID,
		Metadata: EventMetadata{
			SessionID:     s.sessionID,
			Sequence:      s.seq,
			SchemaVersion: CurrentSchemaVersion,
		},
	}
}

// Start records the simulation_start core event. It is a no-op against
// the kernel (which is already constructed from initialModel), purely
// a marker for replay's event-ordering invariant.
func (s *Session) Start() CoreEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.newEvent(EventSimulationStart, "")
	s.events = append(s.events, ev)
	return ev
}

// Step advances the kernel by exactly one tick and records a
// timer_tick core event.
func (s *Session) Step() CoreEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step()
}

func (s *Session) step() CoreEvent {
	ev := s.newEvent(EventTimerTick, "")
	s.kernel.Tick()
	s.events = append(s.events, ev)
	return ev
}

// Play advances the kernel by up to n ticks, stopping early if Pause
// is called from another goroutine mid-run.
func (s *Session) Play(n int) []CoreEvent {
	s.mu.Lock()
	s.playing = true
	s.mu.Unlock()

	out := make([]CoreEvent, 0, n)
	for i := 0; i < n; i++ {
		s.mu.Lock()
		if !s.playing {
			s.mu.Unlock()
			break
		}
		out = append(out, s.step())
		s.mu.Unlock()
	}
	return out
}

// Pause stops a running Play loop between ticks and records a
// simulation_control core event (spec §5's "pause stops the kernel
// between ticks").
func (s *Session) Pause() CoreEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	ev := s.newEvent(EventSimulationControl, "")
	ev.Control = &ControlPayload{Action: ControlPause}
	s.events = append(s.events, ev)
	return ev
}

// Reset discards derived kernel state but preserves the core-event
// list captured so far (spec §5), reconstructing a fresh kernel from
// the initial model.
func (s *Session) Reset() CoreEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.kernel = kernel.New(s.initialModel, s.cfg, s.logger, s.metrics, s.collab)
	ev := s.newEvent(EventSimulationControl, "")
	ev.Control = &ControlPayload{Action: ControlReset}
	s.events = append(s.events, ev)
	return ev
}

// InjectToken materialises a token owned by node "user" and routes it
// to nodeID/inputName (spec §4.6's manual_input_injection).
func (s *Session) InjectToken(nodeID, inputName string, value any) CoreEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.newEvent(EventManualTokenInjection, nodeID)
	ev.TokenInjection = &TokenInjectionPayload{InputName: inputName, Value: value}
	s.kernel.InjectToken(nodeID, inputName, value)
	s.events = append(s.events, ev)
	return ev
}

// UpgradeModel atomically swaps in newScenario at the current tick
// boundary (spec §4.6's model_upgrade).
func (s *Session) UpgradeModel(newScenario *model.Scenario, reason string) CoreEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.newEvent(EventModelUpgrade, "")
	ev.ModelUpgrade = &ModelUpgradePayload{Scenario: newScenario, Reason: reason}
	s.kernel.UpgradeModel(newScenario)
	s.events = append(s.events, ev)
	return ev
}

// InjectExternalFeed delivers an externally-sourced value into an
// FSMProcessNode's event stream, adapted the same way a token arrival
// is (spec §4.6's "external-data feed arrival").
func (s *Session) InjectExternalFeed(nodeID, feedName, inputName string, value any) CoreEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.newEvent(EventExternalDataFeedArrival, nodeID)
	ev.ExternalFeed = &ExternalFeedPayload{FeedName: feedName, InputName: inputName, Value: value}
	s.kernel.InjectEvent(nodeID, fsm.Event{
		ID: ev.ID, Type: "external_feed_arrival", SourceType: feedName,
		Data: map[string]any{"input": inputName, "value": value, "feed": feedName},
	})
	s.events = append(s.events, ev)
	return ev
}

// UserInteraction records an annotated, state-preserving interaction
// (spec §4.6: "user interactions only augment the log").
func (s *Session) UserInteraction(category string, details map[string]any) CoreEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.newEvent(EventUserInteraction, "")
	ev.UserInteraction = &UserInteractionPayload{Category: category, Details: details}
	s.kernel.Log().Append(token.Entry{
		SimTime: s.kernel.Time(), NodeID: "user", Action: token.ActionControl,
		Error: "", Value: map[string]any{"category": category, "details": details},
	})
	s.events = append(s.events, ev)
	return ev
}

// Snapshot records a checkpoint after the events captured so far,
// digesting the current log so a later replay can be validated against
// it (spec §4.6 step 3).
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:              uuid.NewString(),
		AfterEventIndex: len(s.events),
		SimTime:         s.kernel.Time(),
		LogLength:       s.kernel.Log().Len(),
		LogDigest:       logDigest(s.kernel.Log().Entries()),
	}
	s.snaps = append(s.snaps, snap)
	return snap
}

// Recording returns an immutable copy of everything captured so far.
func (s *Session) Recording() *Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Recording{
		SchemaVersion: CurrentSchemaVersion,
		SessionID:     s.sessionID,
		InitialModel:  s.initialModel,
		Events:        append([]CoreEvent(nil), s.events...),
		Snapshots:     append([]Snapshot(nil), s.snaps...),
	}
}

// logDigest hashes the log's derived entries in append order, used to
// validate that two replays of the same recording produced
// byte-identical derived state (spec §8 invariant #5) without needing
// a full entry-by-entry equality check at every call site.
func logDigest(entries []token.Entry) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for i := range entries {
		_ = enc.Encode(entries[i])
	}
	return hex.EncodeToString(h.Sum(nil))
}
