package orchestrator

import (
	"context"

	"github.com/R3E-Network/resolution-engine/domain/resolution"
)

// ProcessEvent fetches eventID (cache-through) and builds a
// TransitionContext as if "replaying" into the event's own authoritative
// status. It is the crash-recovery and external-poke entry point.
//
// The transition table has no self-loop edges — CREATED->CREATED is not
// a registered transition — so replay here does not mean re-running
// Table.Apply against (status, status); it means confirming the event is
// in a known state and returning a fresh TransitionContext for the
// caller to act on. Side effects that must survive a crash (the pending
// LivenessJob, the pending SettlementJob) are owned by the job scheduler,
// whose Postgres mirror rehydrates them on restart independently of this
// call, so ProcessEvent itself issues no extra side effects on a replay
// with unchanged upstream state — satisfying idempotence.
func (o *Orchestrator) ProcessEvent(ctx context.Context, eventID string) (*resolution.TransitionContext, error) {
	event, err := o.readEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &resolution.TransitionContext{Event: event}, nil
}
