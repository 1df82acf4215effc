package fsm

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// FeedbackConfig bounds how deep and how often feedback (an event or
// message routed back into a node, whether to itself or to another
// node) may occur before the manager starts rejecting it (spec §4.4).
type FeedbackConfig struct {
	MaxDepth        int
	CircuitThreshold int           // feedback admissions per window before the breaker opens
	CircuitWindow   time.Duration
	CircuitCooldown time.Duration
	Blacklist       map[string]bool // target node ids that are never admitted
}

// DefaultFeedbackConfig mirrors internal/config's central defaults.
func DefaultFeedbackConfig() FeedbackConfig {
	return FeedbackConfig{
		MaxDepth:        10,
		CircuitThreshold: 20,
		CircuitWindow:   10 * time.Second,
		CircuitCooldown: 30 * time.Second,
	}
}

type breakerState struct {
	limiter  *rate.Limiter
	open     bool
	openedAt time.Time
}

// FeedbackManager tracks feedback depth and per-target circuit breakers
// across an entire scenario run. One manager is shared by every
// FSMProcessNode Runtime, keyed by target node id, mirroring the
// teacher's infrastructure/resilience circuit breaker, except that an
// open breaker returns straight to closed once the cooldown has passed
// (there is no half-open state). It is driven by a caller-supplied
// timestamp rather than the wall clock; the kernel passes a time derived
// from the simulation tick, so admission decisions replay bit-identically.
type FeedbackManager struct {
	mu      sync.Mutex
	cfg     FeedbackConfig
	seq     uint64
	breakers map[string]*breakerState
}

// NewFeedbackManager constructs a manager for one scenario run.
func NewFeedbackManager(cfg FeedbackConfig) *FeedbackManager {
	return &FeedbackManager{cfg: cfg, breakers: make(map[string]*breakerState)}
}

// Admit decides whether a new feedback event/message may be created,
// targeting targetNodeID, whose causing trigger had feedbackDepth.
// On admission it returns a fresh execution id and the new depth;
// otherwise it returns the rejection reason for a feedback_blocked
// log entry.
func (m *FeedbackManager) Admit(now time.Time, targetNodeID string, feedbackDepth int) (executionID string, newDepth int, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	newDepth = feedbackDepth + 1
	if newDepth > m.cfg.MaxDepth {
		return "", newDepth, fmt.Sprintf("feedback depth %d exceeds max %d", newDepth, m.cfg.MaxDepth)
	}
	if m.cfg.Blacklist[targetNodeID] {
		return "", newDepth, fmt.Sprintf("target %q is blacklisted", targetNodeID)
	}

	b := m.breakerState(targetNodeID)
	if b.open {
		if now.Sub(b.openedAt) < m.cfg.CircuitCooldown {
			return "", newDepth, fmt.Sprintf("circuit breaker open for %q", targetNodeID)
		}
		// cool-down elapsed: close the breaker and give it a fresh window.
		b.open = false
		b.limiter.SetBurstAt(now, m.cfg.CircuitThreshold)
	}

	if !b.limiter.AllowN(now, 1) {
		b.open = true
		b.openedAt = now
		return "", newDepth, fmt.Sprintf("circuit breaker tripped for %q (feedback rate exceeded)", targetNodeID)
	}

	m.seq++
	return fmt.Sprintf("exec-%d", m.seq), newDepth, ""
}

func (m *FeedbackManager) breakerState(targetNodeID string) *breakerState {
	b, ok := m.breakers[targetNodeID]
	if !ok {
		ratePerSec := rate.Limit(float64(m.cfg.CircuitThreshold) / m.cfg.CircuitWindow.Seconds())
		b = &breakerState{limiter: rate.NewLimiter(ratePerSec, m.cfg.CircuitThreshold)}
		m.breakers[targetNodeID] = b
	}
	return b
}

// IsOpen reports whether the circuit breaker for targetNodeID is
// currently open, for tests and diagnostics.
func (m *FeedbackManager) IsOpen(targetNodeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[targetNodeID]
	return ok && b.open
}
