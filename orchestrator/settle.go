package orchestrator

import (
	"context"
	"sync"

	"github.com/R3E-Network/resolution-engine/domain/resolution"
	engerrors "github.com/R3E-Network/resolution-engine/infrastructure/errors"
)

// batchSettleConcurrency bounds how many settleEvent calls a single
// BatchSettleEvents invocation runs at once.
const batchSettleConcurrency = 8

// SettleEvent is invoked by a firing SettlementJob. It requires the
// event to still be RESOLVED, settles on-chain, best-effort distributes
// rewards, transitions to SETTLED, and purges every cache entry tied to
// the event.
func (o *Orchestrator) SettleEvent(ctx context.Context, eventID string) error {
	event, err := o.readEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if event.Status != resolution.StateResolved {
		return engerrors.GuardFailed("settle: event " + eventID + " is not in RESOLVED")
	}

	if _, err := o.chain.SettleEvent(ctx, eventID); err != nil {
		return err
	}

	if err := o.rewards.Distribute(ctx, eventID); err != nil && o.log != nil {
		o.log.LogPeerCall(ctx, "reward", "/distribute", err)
	}

	if err := o.patchEventStatus(ctx, eventID, resolution.StateSettled, resolution.StateResolved); err != nil {
		return err
	}

	o.purgeEventCache(ctx, eventID)
	return nil
}

// BatchSettleResult is what BatchSettleEvents reports: counts, not a
// list of per-id errors, matching the queue surface's {successful,
// failed} shape.
type BatchSettleResult struct {
	Successful int
	Failed     int
}

// BatchSettleEvents fans SettleEvent out over a bounded worker pool, one
// call per id, and reports aggregate counts without aborting on partial
// failure — a single bad event must not block the rest of the batch.
func (o *Orchestrator) BatchSettleEvents(ctx context.Context, eventIDs []string) BatchSettleResult {
	sem := make(chan struct{}, batchSettleConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	result := BatchSettleResult{}

	for _, eventID := range eventIDs {
		eventID := eventID
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			err := o.SettleEvent(ctx, eventID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.warnf(ctx, err, "batchSettleEvents: settle failed for "+eventID)
				result.Failed++
			} else {
				result.Successful++
			}
		}()
	}
	wg.Wait()
	return result
}
