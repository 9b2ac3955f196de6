package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/R3E-Network/resolution-engine/domain/resolution"
	engerrors "github.com/R3E-Network/resolution-engine/infrastructure/errors"
	"github.com/R3E-Network/resolution-engine/infrastructure/queue"
)

// livenessMaxAttempts/livenessBackoffBase are the scheduler retry policy
// for LivenessJobs, per §4.5 step 2.
const (
	livenessMaxAttempts = 3
	livenessBackoffBase = 5 * time.Second
)

// InitiateProposal submits a candidate outcome on-chain, schedules its
// LivenessJob, and transitions the event to LIVENESS. The transition table
// must allow the event's current status to move to LIVENESS (PROPOSING, or
// DISPUTED/ARBITRATION on re-entry); that is validated before any chain
// call is made.
//
// On failure between the chain submission and the event-manager PATCH,
// chain state and engine state diverge by design — the Indexer (C6) is
// the repair mechanism, not a compensating transaction here.
func (o *Orchestrator) InitiateProposal(ctx context.Context, eventID string, data resolution.ProposalData) (string, error) {
	event, err := o.readEvent(ctx, eventID)
	if err != nil {
		return "", err
	}
	if !o.table.Allowed(event.Status, resolution.StateLiveness) {
		return "", engerrors.InvalidTransition(string(event.Status), string(resolution.StateLiveness))
	}

	result, err := o.chain.SubmitProposal(ctx, eventID, data)
	if err != nil {
		return "", err
	}

	delay := time.Until(result.LivenessExpiry)
	if delay < 0 {
		delay = 0
	}
	payload, err := json.Marshal(queue.PayloadProposalID{ProposalID: result.ProposalID, EventID: eventID})
	if err != nil {
		return "", err
	}
	if _, err := o.scheduler.Enqueue(ctx, queue.QueueLivenessMonitoring, queue.JobTypeLiveness, payload, queue.EnqueueOptions{
		Delay:       delay,
		MaxAttempts: livenessMaxAttempts,
		BackoffBase: livenessBackoffBase,
	}); err != nil {
		o.warnf(ctx, err, "initiateProposal: chain submission succeeded but LivenessJob enqueue failed, engine/chain state have diverged")
		return "", err
	}

	if err := o.patchEventStatus(ctx, eventID, resolution.StateLiveness, event.Status); err != nil {
		o.warnf(ctx, err, "initiateProposal: chain submission and job enqueue succeeded but event PATCH failed, engine/chain state have diverged")
		return "", err
	}

	o.indexProposal(ctx, eventID, result.ProposalID)
	return result.ProposalID, nil
}
