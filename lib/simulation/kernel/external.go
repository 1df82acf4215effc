package kernel

import "github.com/r3e-network/dataflow-sim/lib/simulation/fsm"

// APIClient is the external HTTP collaborator spec §6 names for the
// action system's `api_call` output. Only the contract is in scope
// here; the kernel never ships an implementation.
type APIClient interface {
	Call(req fsm.APICallRequest) (map[string]any, error)
}

// EmailTransport is the external email collaborator spec §6 names for
// the action system's `email` output.
type EmailTransport interface {
	Send(req fsm.EmailRequest) error
}

// Collaborators bundles the external, out-of-scope systems the action
// system and event interpretation may call into. Every field is
// optional; a nil collaborator makes the corresponding action
// output/rule method fail with an evaluation-class error that is
// recorded, not fatal (spec §7).
type Collaborators struct {
	API   APIClient
	Email EmailTransport
	AI    fsm.AIClient
}
