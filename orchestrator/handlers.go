package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/R3E-Network/resolution-engine/infrastructure/queue"
)

// batchSettlePayload is the body of a batch-settlement job, per the
// queue surface's `{eventIds: [id]}` shape.
type batchSettlePayload struct {
	EventIDs []string `json:"eventIds"`
}

// RegisterHandlers wires the orchestrator's job handlers into scheduler
// under the two named queues, ready for scheduler.Start. Handlers must
// be registered before Start is called.
func (o *Orchestrator) RegisterHandlers(scheduler interface {
	RegisterQueue(queueName string, concurrency int, handler queue.Handler)
}, livenessConcurrency, settlementConcurrency int) {
	scheduler.RegisterQueue(queue.QueueLivenessMonitoring, livenessConcurrency, o.handleLivenessJob)
	scheduler.RegisterQueue(queue.QueueSettlementProcessing, settlementConcurrency, o.handleSettlementJob)
}

func (o *Orchestrator) handleLivenessJob(ctx context.Context, job queue.Job) error {
	var payload queue.PayloadProposalID
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("orchestrator: decode liveness job payload: %w", err)
	}
	return o.FinalizeProposal(ctx, payload.ProposalID)
}

func (o *Orchestrator) handleSettlementJob(ctx context.Context, job queue.Job) error {
	switch job.Type {
	case queue.JobTypeSettlement:
		var payload queue.PayloadProposalID
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("orchestrator: decode settlement job payload: %w", err)
		}
		return o.SettleEvent(ctx, payload.EventID)
	case queue.JobTypeBatchSettlement:
		var payload batchSettlePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("orchestrator: decode batch settlement job payload: %w", err)
		}
		result := o.BatchSettleEvents(ctx, payload.EventIDs)
		if result.Failed > 0 {
			o.warnf(ctx, fmt.Errorf("%d of %d settlements failed", result.Failed, len(payload.EventIDs)), "batch-settlement job completed with partial failure")
		}
		return nil
	default:
		return fmt.Errorf("orchestrator: unknown settlement job type %q", job.Type)
	}
}
