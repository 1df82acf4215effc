package kernel

import "github.com/r3e-network/dataflow-sim/lib/simulation/token"

// buffers holds the per-node, per-input token queues. Routing within a
// tick uses the staged-commit pattern of spec §4.1: processing a tick
// reads from live and appends new tokens to staged; staged only becomes
// the next tick's live set once every node has been processed, so no
// node observes another node's output from the same tick.
type buffers struct {
	live   map[string]map[string][]token.Token
	staged map[string]map[string][]token.Token
}

func newBuffers() *buffers {
	return &buffers{
		live:   make(map[string]map[string][]token.Token),
		staged: make(map[string]map[string][]token.Token),
	}
}

// pop drains and returns every token currently buffered at nodeID/input.
func (b *buffers) pop(nodeID, input string) []token.Token {
	perNode := b.live[nodeID]
	if perNode == nil {
		return nil
	}
	toks := perNode[input]
	delete(perNode, input)
	return toks
}

// popOne removes and returns just the oldest token buffered at
// nodeID/input, leaving any remainder for a later tick. Used by
// ProcessNode, which "pops one from each" declared input rather than
// draining the whole buffer (spec §4.1).
func (b *buffers) popOne(nodeID, input string) (token.Token, bool) {
	perNode := b.live[nodeID]
	if perNode == nil || len(perNode[input]) == 0 {
		return token.Token{}, false
	}
	toks := perNode[input]
	head := toks[0]
	perNode[input] = toks[1:]
	return head, true
}

// peekSize reports the live buffer size without draining it, used for
// the "every declared input has at least one token" readiness check and
// for BufferSizes reporting in log entries.
func (b *buffers) peekSize(nodeID, input string) int {
	return len(b.live[nodeID][input])
}

// sizes returns a snapshot of every live buffer size for nodeID, keyed
// by input name, for Entry.BufferSizes.
func (b *buffers) sizes(nodeID string, inputNames []string) map[string]int {
	out := make(map[string]int, len(inputNames))
	for _, name := range inputNames {
		out[name] = b.peekSize(nodeID, name)
	}
	return out
}

// route stages tok for delivery to nodeID/input at the next tick
// boundary.
func (b *buffers) route(nodeID, input string, tok token.Token) {
	if b.staged[nodeID] == nil {
		b.staged[nodeID] = make(map[string][]token.Token)
	}
	b.staged[nodeID][input] = append(b.staged[nodeID][input], tok)
}

// commit merges every staged token into the live set for the next tick
// and clears staged. Merging (rather than replacing) preserves tokens a
// node left unconsumed this tick — e.g. a ProcessNode still waiting on
// one more declared input.
func (b *buffers) commit() {
	for nodeID, inputs := range b.staged {
		if b.live[nodeID] == nil {
			b.live[nodeID] = make(map[string][]token.Token)
		}
		for name, toks := range inputs {
			b.live[nodeID][name] = append(b.live[nodeID][name], toks...)
		}
	}
	b.staged = make(map[string]map[string][]token.Token)
}
