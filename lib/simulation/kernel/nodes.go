package kernel

import (
	"fmt"
	"time"

	"github.com/r3e-network/dataflow-sim/lib/simulation/formula"
	"github.com/r3e-network/dataflow-sim/lib/simulation/fsm"
	"github.com/r3e-network/dataflow-sim/lib/simulation/model"
	"github.com/r3e-network/dataflow-sim/lib/simulation/token"
)

// processDataSource implements spec §4.1's DataSource rule: emit a
// seeded-random value once EmissionInterval ticks have elapsed since
// the last emission, onto every declared output.
func (k *Kernel) processDataSource(n *model.Node) {
	ds := n.DataSource
	st := k.dsState[n.NodeID]

	if k.time < st.lastEmission+ds.EmissionInterval {
		k.setState(n.NodeID, SourceWaiting)
		return
	}

	k.setState(n.NodeID, SourceGenerating)
	value := st.rnd.Uniform(ds.ValueMin, ds.ValueMax)
	st.lastEmission = k.time

	tok := k.newToken(n.NodeID, value)
	k.recordGenesis(tok, nil)

	k.setState(n.NodeID, SourceEmitting)
	for _, out := range ds.Outputs {
		k.emit(tok, out)
	}

	k.appendEntry(token.Entry{
		SimTime: k.time, NodeID: n.NodeID, Action: token.ActionCreated,
		Value: value, TokenID: tok.ID, NodeState: string(SourceEmitting),
		Lineage: &token.LineageMetadata{GenerationLevel: 0},
	})
	k.metrics.TokensCreated.WithLabelValues(n.NodeID).Inc()
	k.setState(n.NodeID, SourceIdle)
}

// processQueue implements spec §4.1's Queue rule: pull every buffered
// token into the window every tick; once TriggerWindow ticks have
// elapsed since the last aggregation, reduce the window with the
// declared method (and optional post-aggregation formula) and emit one
// result token.
func (k *Kernel) processQueue(n *model.Node) {
	q := n.Queue
	st := k.queueState[n.NodeID]

	k.setState(n.NodeID, QueueAccumulating)
	for _, in := range q.Inputs {
		incoming := k.buf.pop(n.NodeID, in.Name)
		for _, tok := range incoming {
			if q.Capacity > 0 && len(st.window) >= q.Capacity {
				k.appendEntry(token.Entry{
					SimTime: k.time, NodeID: n.NodeID, Action: token.ActionDropped,
					TokenID: tok.ID, Value: tok.Value, NodeState: string(QueueAccumulating),
				})
				k.metrics.TokensDropped.WithLabelValues(n.NodeID).Inc()
				continue
			}
			st.window = append(st.window, tok)
		}
	}

	if k.time < st.lastAggregation+q.TriggerWindow || len(st.window) == 0 {
		k.setState(n.NodeID, QueueIdle)
		return
	}

	k.setState(n.NodeID, QueueProcessing)
	result, err := aggregate(q.Method, st.window)
	if err != nil {
		k.appendError(n, QueueIdle, err)
		st.window = nil
		st.lastAggregation = k.time
		k.setState(n.NodeID, QueueIdle)
		return
	}

	value := any(result.value)
	var transform *token.TransformationDetails
	if q.Formula != "" {
		ctx := &formula.Context{Inputs: map[string]any{"aggregated": result.value}, Now: k.time}
		v, ferr := formula.Eval(q.Formula, ctx)
		if ferr != nil {
			k.appendError(n, QueueIdle, ferr)
			st.window = nil
			st.lastAggregation = k.time
			k.setState(n.NodeID, QueueIdle)
			return
		}
		value = v
		transform = &token.TransformationDetails{
			Formula:      q.Formula,
			InputMapping: map[string]token.Value{"aggregated": result.value},
			Calculation:  fmt.Sprintf("%s => %v", q.Formula, v),
		}
	}

	resultTok := k.newToken(n.NodeID, value)
	k.recordGenesis(resultTok, st.window)

	k.appendEntry(token.Entry{
		SimTime: k.time, NodeID: n.NodeID, Action: token.ActionAggregated, AggMethod: string(q.Method),
		Value: value, TokenID: resultTok.ID, NodeState: string(QueueProcessing),
		SourceTokenIDs:  k.sourceIDs(st.window),
		SourceSummaries: k.sourceSummaries(st.window),
		Aggregation:     &token.AggregationDetails{Method: string(q.Method), Contributions: result.contributions, Calculation: result.calculation},
		Transformation:  transform,
		Lineage:         &token.LineageMetadata{GenerationLevel: k.genLevel[resultTok.ID], DeepWarning: k.genLevel[resultTok.ID] > k.cfg.LineageWarnDepth},
	})
	k.metrics.TokensCreated.WithLabelValues(n.NodeID).Inc()

	k.setState(n.NodeID, QueueEmitting)
	for _, out := range q.Outputs {
		k.emit(resultTok, out)
	}

	st.window = nil
	st.lastAggregation = k.time
	k.setState(n.NodeID, QueueIdle)
}

// processProcess implements spec §4.1's ProcessNode rule: wait until
// every declared input has at least one token, pop one from each, and
// evaluate every output's formula against the input mapping.
func (k *Kernel) processProcess(n *model.Node) {
	p := n.Process
	names := n.InputNames()

	k.setState(n.NodeID, ProcessCollecting)
	for _, name := range names {
		if k.buf.peekSize(n.NodeID, name) == 0 {
			k.setState(n.NodeID, ProcessCollecting)
			return
		}
	}

	k.setState(n.NodeID, ProcessReady)
	inputTokens := make(map[string]token.Token, len(names))
	inputValues := make(map[string]any, len(names))
	sources := make([]token.Token, 0, len(names))
	for _, name := range names {
		tok, _ := k.buf.popOne(n.NodeID, name)
		inputTokens[name] = tok
		inputValues[name] = tok.Value
		sources = append(sources, tok)
	}

	k.setState(n.NodeID, ProcessEvaluating)
	for _, out := range p.Outputs {
		ctx := &formula.Context{Inputs: inputValues, Now: k.time}
		v, err := formula.Eval(out.Formula, ctx)
		if err != nil {
			k.appendError(n, ProcessIdle, err)
			continue
		}

		outTok := k.newToken(n.NodeID, v)
		k.recordGenesis(outTok, sources)

		k.appendEntry(token.Entry{
			SimTime: k.time, NodeID: n.NodeID, Action: token.ActionCreated,
			Value: v, TokenID: outTok.ID, NodeState: string(ProcessEvaluating),
			SourceTokenIDs:  k.sourceIDs(sources),
			SourceSummaries: k.sourceSummaries(sources),
			Transformation: &token.TransformationDetails{
				Formula: out.Formula, InputMapping: inputValues,
				Calculation: fmt.Sprintf("%s => %v", out.Formula, v),
			},
			Lineage: &token.LineageMetadata{GenerationLevel: k.genLevel[outTok.ID], DeepWarning: k.genLevel[outTok.ID] > k.cfg.LineageWarnDepth},
		})
		k.metrics.TokensCreated.WithLabelValues(n.NodeID).Inc()

		k.setState(n.NodeID, ProcessOutputting)
		k.emit(outTok, out)
	}
	k.setState(n.NodeID, ProcessIdle)
}

// processFSM implements spec §4.4's enhanced FSM rule: every token
// arriving on a declared input is adapted into a synthetic
// token_received event, the runtime advances exactly one tick, and
// every effect it reports is applied against the rest of the scenario.
func (k *Kernel) processFSM(n *model.Node) {
	rt := k.fsmRuntime[n.NodeID]
	rnd := k.fsmRand[n.NodeID]
	seqPtr := k.fsmSeq[n.NodeID]

	k.setState(n.NodeID, FSMCollecting)
	for _, name := range n.InputNames() {
		for _, tok := range k.buf.pop(n.NodeID, name) {
			rt.PushEvent(fsm.TokenReceivedEvent(tok.ID, name, tok.Value))
			k.appendEntry(token.Entry{
				SimTime: k.time, NodeID: n.NodeID, Action: token.ActionArrival,
				TokenID: tok.ID, Value: tok.Value, NodeState: string(FSMCollecting),
			})
		}
	}

	k.setState(n.NodeID, FSMEvaluating)
	effects, fired := rt.Tick(k.time, rnd.Float64, func() uint64 { *seqPtr++; return *seqPtr })

	for _, tf := range fired {
		k.appendEntry(token.Entry{
			SimTime: k.time, NodeID: n.NodeID, Action: token.ActionStateTransition,
			Value: map[string]any{"from": tf.From, "to": tf.To, "trigger": tf.Trigger},
			NodeState: tf.To,
		})
	}

	k.setState(n.NodeID, FSMActing)
	for _, eff := range effects {
		k.applyFSMEffect(n, eff)
	}
	k.setState(n.NodeID, FSMIdle)
}

// applyFSMEffect dispatches one fsm.Effect against the rest of the
// scenario: tokens are routed through the node's declared outputs,
// events/messages are gated through the feedback manager before being
// delivered to their target runtime, and external collaborator calls
// are invoked if the host program supplied one (spec §4.4, §6).
func (k *Kernel) applyFSMEffect(n *model.Node, eff fsm.Effect) {
	switch eff.Kind {
	case fsm.EffectToken:
		for _, out := range n.FSM.Outputs {
			if out.Name != eff.OutputName {
				continue
			}
			tok := k.newToken(n.NodeID, eff.Value)
			k.recordGenesis(tok, nil)
			k.appendEntry(token.Entry{
				SimTime: k.time, NodeID: n.NodeID, Action: token.ActionCreated,
				Value: eff.Value, TokenID: tok.ID, NodeState: string(FSMActing),
				Lineage: &token.LineageMetadata{GenerationLevel: k.genLevel[tok.ID]},
			})
			k.metrics.TokensCreated.WithLabelValues(n.NodeID).Inc()
			k.emit(tok, out)
		}

	case fsm.EffectEvent, fsm.EffectMessage:
		target := eff.TargetNodeID
		if target == "" {
			target = n.NodeID
		}
		depth := 0
		if eff.Event != nil {
			depth = eff.Event.FeedbackDepth
		} else if eff.Message != nil {
			depth = eff.Message.FeedbackDepth
		}
		execID, newDepth, reason := k.feedback.Admit(k.tickTime(), target, depth)
		if reason != "" {
			k.appendEntry(token.Entry{
				SimTime: k.time, NodeID: target, Action: token.ActionFeedbackBlocked,
				Error: reason, NodeState: string(FSMIdle),
			})
			k.metrics.FeedbackBlocked.WithLabelValues(target).Inc()
			return
		}
		targetRT, ok := k.fsmRuntime[target]
		if !ok {
			return
		}
		if eff.Event != nil {
			ev := *eff.Event
			ev.FeedbackDepth, ev.ExecutionID = newDepth, execID
			targetRT.PushEvent(ev)
		} else if eff.Message != nil {
			msg := *eff.Message
			msg.FeedbackDepth, msg.ExecutionID = newDepth, execID
			targetRT.PushMessage(msg)
		}

	case fsm.EffectAPICall:
		if k.collab.API == nil || eff.APICall == nil {
			k.appendError(n, FSMIdle, fmt.Errorf("action %q requires an APIClient", eff.ActionName))
			return
		}
		if err := withRetry(eff.OnError, eff.RetryCount, func() error {
			_, err := k.collab.API.Call(*eff.APICall)
			return err
		}); err != nil {
			k.appendError(n, FSMIdle, err)
		}

	case fsm.EffectEmail:
		if k.collab.Email == nil || eff.Email == nil {
			k.appendError(n, FSMIdle, fmt.Errorf("action %q requires an EmailTransport", eff.ActionName))
			return
		}
		if err := withRetry(eff.OnError, eff.RetryCount, func() error {
			return k.collab.Email.Send(*eff.Email)
		}); err != nil {
			k.appendError(n, FSMIdle, err)
		}

	case fsm.EffectLog:
		k.logger.WithFields(nil).Infof("[%s] %s: %s", n.NodeID, eff.LogLevel, eff.LogMessage)

	case fsm.EffectVariable:
		k.appendEntry(token.Entry{
			SimTime: k.time, NodeID: n.NodeID, Action: token.ActionControl,
			Value: eff.Value, NodeState: string(FSMActing),
			Error: "",
		})
	}
}

// Backoff parameters for withRetry, matching the shape of the teacher's
// txsubmitter retry config (initial delay, multiplier, capped maximum).
const (
	retryInitialBackoff = 50 * time.Millisecond
	retryMaxBackoff     = 2 * time.Second
	retryMultiplier     = 2.0
)

// withRetry executes call once, then — only when policy is
// model.OnErrorRetry and retryCount > 0 — retries up to retryCount more
// times with exponential backoff, returning the last error if every
// attempt fails. model.OnErrorStop and model.OnErrorContinue both make a
// single attempt: at this dispatch site the action's remaining outputs
// have already been produced, so "stop" can only mean "don't retry this
// one", same as "continue" (spec §4.4's onError policy).
func withRetry(policy model.ErrorPolicy, retryCount int, call func() error) error {
	attempts := 1
	if policy == model.OnErrorRetry && retryCount > 0 {
		attempts = retryCount + 1
	}

	backoff := retryInitialBackoff
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = call(); err == nil {
			return nil
		}
		if attempt < attempts-1 {
			time.Sleep(backoff)
			backoff = time.Duration(float64(backoff) * retryMultiplier)
			if backoff > retryMaxBackoff {
				backoff = retryMaxBackoff
			}
		}
	}
	return err
}

// tickTime derives a deterministic time.Time from the current
// simulation tick for the feedback manager's circuit breaker, so
// admission decisions are a pure function of simulation time and replay
// bit-identically (spec §8 invariant #5).
func (k *Kernel) tickTime() time.Time {
	return time.Unix(k.time, 0)
}

// processSink implements spec §4.1's Sink rule: drain the input buffer,
// counting and retaining up to RetainLast of the most recent tokens.
func (k *Kernel) processSink(n *model.Node) {
	st := k.sinkState[n.NodeID]
	retainLast := n.Sink.RetainLast
	if retainLast <= 0 {
		retainLast = k.cfg.SinkRetention
	}

	var drained []token.Token
	for _, name := range n.InputNames() {
		drained = append(drained, k.buf.pop(n.NodeID, name)...)
	}
	if len(drained) == 0 {
		k.setState(n.NodeID, SinkIdle)
		return
	}

	k.setState(n.NodeID, SinkProcessing)
	for _, tok := range drained {
		st.count++
		st.retained = append(st.retained, tok)
		if len(st.retained) > retainLast {
			st.retained = st.retained[len(st.retained)-retainLast:]
		}
		k.appendEntry(token.Entry{
			SimTime: k.time, NodeID: n.NodeID, Action: token.ActionConsumption,
			Value: tok.Value, TokenID: tok.ID, NodeState: string(SinkProcessing),
			SourceTokenIDs: []string{tok.ID},
		})
	}
	k.setState(n.NodeID, SinkIdle)
}
