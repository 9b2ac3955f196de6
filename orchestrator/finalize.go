package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/R3E-Network/resolution-engine/domain/resolution"
	"github.com/R3E-Network/resolution-engine/infrastructure/queue"
)

// settlementDelay/settlementMaxAttempts/settlementBackoffBase are the
// scheduler retry policy for SettlementJobs, per §4.5 step 5.
const (
	settlementDelay       = 60 * time.Second
	settlementMaxAttempts = 5
	settlementBackoffBase = 10 * time.Second
)

// FinalizeProposal is invoked by a firing LivenessJob. It re-checks the
// finalization guard (I-F1) at execution time rather than trusting the
// state the job was scheduled against, because the job may fire long
// after a dispute raced it: the guard, not the timer, is what closes
// that window.
func (o *Orchestrator) FinalizeProposal(ctx context.Context, proposalID string) error {
	proposal, err := o.readProposal(ctx, proposalID)
	if err != nil {
		return err
	}

	if ok, err := o.finalizationGuardPasses(ctx, proposal); err != nil {
		return err
	} else if !ok {
		return guardFailedf("finalize: proposal " + proposalID + " does not meet finalization conditions")
	}

	if _, err := o.chain.FinalizeProposal(ctx, proposalID); err != nil {
		return err
	}

	if err := o.patchEventStatus(ctx, proposal.EventID, resolution.StateResolved, resolution.StateLiveness); err != nil {
		return err
	}

	payload, err := json.Marshal(queue.PayloadProposalID{ProposalID: proposalID, EventID: proposal.EventID})
	if err != nil {
		return err
	}
	_, err = o.scheduler.Enqueue(ctx, queue.QueueSettlementProcessing, queue.JobTypeSettlement, payload, queue.EnqueueOptions{
		Delay:       settlementDelay,
		MaxAttempts: settlementMaxAttempts,
		BackoffBase: settlementBackoffBase,
	})
	return err
}

// finalizationGuardPasses implements I-F1: the proposal must still be in
// LIVENESS, its livenessExpiry must be strictly in the past (now ==
// livenessExpiry fails, per the boundary case in §8), and no dispute —
// neither a live one on the dispute peer nor the in-process pause token
// set by HandleDisputeDetected — may exist for it.
func (o *Orchestrator) finalizationGuardPasses(ctx context.Context, proposal *resolution.Proposal) (bool, error) {
	if proposal.Status != resolution.ProposalStatusLiveness {
		return false, nil
	}
	if !time.Now().After(proposal.LivenessExpiry) {
		return false, nil
	}
	if o.isPaused(proposal.ProposalID) {
		return false, nil
	}

	disputes, err := o.disputes.ListDisputes(ctx, proposal.ProposalID)
	if err != nil {
		return false, err
	}
	if len(disputes) > 0 {
		return false, nil
	}
	return true, nil
}
