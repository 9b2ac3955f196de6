package orchestrator

import (
	"context"

	"github.com/R3E-Network/resolution-engine/domain/resolution"
	"github.com/R3E-Network/resolution-engine/infrastructure/queue"
)

// HandleDisputeDetected transitions the event to DISPUTED, notifies
// arbitrators best-effort, and cancels every outstanding LivenessJob for
// proposalID. Step 4 (cancellation) completes synchronously before this
// method returns — CancelByPredicate is a synchronous, network-free scan
// over the in-process registry — which is what enforces I-L1/I-L2: a
// stale timer must not be able to race finalization against arbitration.
func (o *Orchestrator) HandleDisputeDetected(ctx context.Context, proposalID string, disputeData resolution.DisputeData) error {
	proposal, err := o.readProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	event, err := o.readEvent(ctx, proposal.EventID)
	if err != nil {
		return err
	}

	if err := o.patchEventStatus(ctx, proposal.EventID, resolution.StateDisputed, event.Status); err != nil {
		return err
	}

	// Defense in depth (§5): the finalize guard checks this token
	// alongside the live dispute query, closing the residual race window
	// between queue removal below and a LivenessJob already mid-flight.
	o.setPaused(proposalID, true)

	if err := o.notifier.NotifyArbitrators(ctx, proposalID, disputeData); err != nil && o.log != nil {
		o.log.LogPeerCall(ctx, "notification", "/notify-arbitrators", err)
	}

	o.PauseLivenessMonitoring(ctx, proposalID)
	return nil
}

// PauseLivenessMonitoring is the idempotent helper used internally by
// HandleDisputeDetected's cancellation step and exposed directly for
// operator recovery tooling. It removes only jobs in {delayed, waiting}.
func (o *Orchestrator) PauseLivenessMonitoring(ctx context.Context, proposalID string) int {
	return o.scheduler.CancelByPredicate(ctx, queue.QueueLivenessMonitoring, func(j queue.Job) bool {
		return j.MatchesProposal(proposalID)
	})
}
