package resolution

import (
	engerrors "github.com/R3E-Network/resolution-engine/infrastructure/errors"
)

// TransitionContext carries the data a guard or action needs. It replaces
// the dynamically-typed bag a looser design would pass around: the
// orchestrator builds one per transition attempt from whatever it already
// fetched (event, and the proposal when the trigger is proposal-scoped),
// plus a metadata tail for anything transition-specific.
type TransitionContext struct {
	Event    *Event
	Proposal *Proposal
	Metadata map[string]any
}

// Guard is a pure predicate attached to an edge; it must not perform I/O.
type Guard func(ctx *TransitionContext) bool

// Action runs after a guard passes. It may suspend on I/O and must be
// idempotent, because the orchestrator may retry the surrounding operation.
type Action func(ctx *TransitionContext) error

type edgeKey struct {
	from State
	to   State
}

// Edge is one entry of the transition table: a permitted (from, to) pair
// with optional guard/action hooks.
type Edge struct {
	From   State
	To     State
	Guard  Guard
	Action Action
}

// Table is the transition table: data, not code, loaded once at startup.
type Table struct {
	edges map[edgeKey]Edge
}

// NewTable builds the table reproduced in full from the resolution-engine
// design: CREATED and DETECTING fan into the detection/evidence pipeline,
// PROPOSING commits to LIVENESS, LIVENESS forks into DISPUTED/MONITORING/
// RESOLVED, DISPUTED escalates to ARBITRATION or returns to LIVENESS,
// ARBITRATION returns to LIVENESS or advances to RESOLVED, and RESOLVED
// settles.
//
// EVIDENCE_GATHERING and MONITORING have no outgoing edges in this table
// (State.IsTerminal still reports false for them): they are holding states whose exit is driven by an external
// handoff (a detection subsystem resuming processing, or a monitoring
// subsystem escalating to dispute) that is outside the engine's contract.
func NewTable() *Table {
	t := &Table{edges: make(map[edgeKey]Edge)}
	for _, e := range []Edge{
		{From: StateCreated, To: StateDetecting},
		{From: StateCreated, To: StateEvidenceGathering},
		{From: StateDetecting, To: StateProposing},
		{From: StateDetecting, To: StateEvidenceGathering},
		{From: StateProposing, To: StateLiveness},
		{From: StateLiveness, To: StateDisputed},
		{From: StateLiveness, To: StateMonitoring},
		{From: StateLiveness, To: StateResolved},
		{From: StateDisputed, To: StateArbitration},
		{From: StateDisputed, To: StateLiveness},
		{From: StateArbitration, To: StateResolved},
		{From: StateArbitration, To: StateLiveness},
		{From: StateResolved, To: StateSettled},
	} {
		t.edges[edgeKey{e.From, e.To}] = e
	}
	return t
}

// WithGuard attaches a guard to an already-registered edge. It panics if the
// edge does not exist, since that indicates a programming error at startup
// wiring time, not a runtime condition.
func (t *Table) WithGuard(from, to State, guard Guard) *Table {
	key := edgeKey{from, to}
	edge, ok := t.edges[key]
	if !ok {
		panic("resolution: cannot attach guard to unregistered edge " + string(from) + "->" + string(to))
	}
	edge.Guard = guard
	t.edges[key] = edge
	return t
}

// WithAction attaches an action to an already-registered edge.
func (t *Table) WithAction(from, to State, action Action) *Table {
	key := edgeKey{from, to}
	edge, ok := t.edges[key]
	if !ok {
		panic("resolution: cannot attach action to unregistered edge " + string(from) + "->" + string(to))
	}
	edge.Action = action
	t.edges[key] = edge
	return t
}

// Allowed reports whether (from, to) is a valid transition.
func (t *Table) Allowed(from, to State) bool {
	_, ok := t.edges[edgeKey{from, to}]
	return ok
}

// Apply validates (from, to) against the table, runs the edge's guard if
// any, and on success runs the edge's action if any. It returns an
// InvalidTransition error if the pair is not in the table, or a GuardFailed
// error if the guard rejects the context.
func (t *Table) Apply(ctx *TransitionContext, from, to State) error {
	edge, ok := t.edges[edgeKey{from, to}]
	if !ok {
		return engerrors.InvalidTransition(string(from), string(to))
	}
	if edge.Guard != nil && !edge.Guard(ctx) {
		return engerrors.GuardFailed("guard rejected transition " + string(from) + " -> " + string(to))
	}
	if edge.Action != nil {
		if err := edge.Action(ctx); err != nil {
			return err
		}
	}
	return nil
}
