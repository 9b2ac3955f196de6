// Package orchestrator implements the Resolution Orchestrator (C5): the
// component that composes the cache adapter, chain adapter, transition
// table, job scheduler, and peer HTTP clients into the engine's five
// entry points. It owns no storage of its own — every fact it needs is
// either fetched through the cache-through helpers below or passed in by
// its caller — and every suspension point takes a context.Context so
// shutdown propagates promptly.
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/R3E-Network/resolution-engine/domain/resolution"
	"github.com/R3E-Network/resolution-engine/infrastructure/cache"
	"github.com/R3E-Network/resolution-engine/infrastructure/chain"
	engerrors "github.com/R3E-Network/resolution-engine/infrastructure/errors"
	"github.com/R3E-Network/resolution-engine/infrastructure/logging"
	"github.com/R3E-Network/resolution-engine/infrastructure/queue"
	"github.com/R3E-Network/resolution-engine/peers"
)

// cacheTTL is the TTL applied to every cache key this package writes,
// matching the 300s window the cache key schema documents for
// event/proposal/index entries.
const cacheTTL = 300 * time.Second

// EventStore is the subset of EventManagerClient the orchestrator needs.
// Declaring it here (rather than depending on *peers.EventManagerClient
// directly) is what lets tests substitute an in-memory fake.
type EventStore interface {
	GetEvent(ctx context.Context, eventID string) (*resolution.Event, error)
	PatchEventStatus(ctx context.Context, eventID string, newStatus, expectedStatus resolution.State) error
	PostBlockchainEvent(ctx context.Context, payload peers.BlockchainEventIngest) error
}

// ProposalStore is the subset of ProposalClient the orchestrator needs.
type ProposalStore interface {
	GetProposal(ctx context.Context, proposalID string) (*resolution.Proposal, error)
}

// DisputeStore is the subset of DisputeClient the orchestrator needs.
type DisputeStore interface {
	ListDisputes(ctx context.Context, proposalID string) ([]resolution.DisputeData, error)
}

// RewardDistributor is the subset of RewardClient the orchestrator needs.
type RewardDistributor interface {
	Distribute(ctx context.Context, eventID string) error
}

// ArbitratorNotifier is the subset of NotificationClient the orchestrator needs.
type ArbitratorNotifier interface {
	NotifyArbitrators(ctx context.Context, proposalID string, disputeData resolution.DisputeData) error
}

// JobScheduler is the subset of *queue.Scheduler the orchestrator drives.
type JobScheduler interface {
	Enqueue(ctx context.Context, queueName, jobType string, payload []byte, opts queue.EnqueueOptions) (queue.Job, error)
	CancelByPredicate(ctx context.Context, queueName string, predicate func(queue.Job) bool) int
	Scan(queueName string, states ...queue.State) []queue.Job
	Remove(ctx context.Context, queueName, jobID string) bool
}

// Metrics is the subset of *metrics.Metrics the orchestrator reports
// against. A nil Metrics disables reporting.
type Metrics interface {
	RecordTransition(from, to string)
}

// Config wires the orchestrator's dependencies. All fields are required
// except Log and Metrics; a nil Log disables logging and a nil Metrics
// disables reporting (no default logger is substituted).
type Config struct {
	Cache     cache.Cache
	Chain     chain.Adapter
	Table     *resolution.Table
	Scheduler JobScheduler
	Events    EventStore
	Proposals ProposalStore
	Disputes  DisputeStore
	Rewards   RewardDistributor
	Notifier  ArbitratorNotifier
	Log       *logging.Logger
	Metrics   Metrics
}

// Orchestrator is the Resolution Orchestrator (C5).
type Orchestrator struct {
	cache     cache.Cache
	chain     chain.Adapter
	table     *resolution.Table
	scheduler JobScheduler
	events    EventStore
	proposals ProposalStore
	disputes  DisputeStore
	rewards   RewardDistributor
	notifier  ArbitratorNotifier
	log       *logging.Logger
	metrics   Metrics

	mu              sync.Mutex
	pausedProposals map[string]bool
}

// New builds an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		cache:           cfg.Cache,
		chain:           cfg.Chain,
		table:           cfg.Table,
		scheduler:       cfg.Scheduler,
		events:          cfg.Events,
		proposals:       cfg.Proposals,
		disputes:        cfg.Disputes,
		rewards:         cfg.Rewards,
		notifier:        cfg.Notifier,
		log:             cfg.Log,
		metrics:         cfg.Metrics,
		pausedProposals: make(map[string]bool),
	}
}

func eventKey(eventID string) string        { return "event:" + eventID }
func proposalKey(proposalID string) string  { return "proposal:" + proposalID }
func proposalIndexKey(eventID string) string { return "event:" + eventID + ":proposals" }

// readEvent is the cache-through read: a cache hit is returned as-is; a
// miss or any cache error (cache failures are never fatal, §7) falls
// through to the event-manager peer, and the peer's answer is written
// back best-effort.
func (o *Orchestrator) readEvent(ctx context.Context, eventID string) (*resolution.Event, error) {
	if raw, ok, err := o.cache.Get(ctx, eventKey(eventID)); err == nil && ok {
		var event resolution.Event
		if jsonErr := json.Unmarshal(raw, &event); jsonErr == nil {
			return &event, nil
		}
	}

	event, err := o.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	o.cacheEvent(ctx, event)
	return event, nil
}

// readProposal is the cache-through read for proposals.
func (o *Orchestrator) readProposal(ctx context.Context, proposalID string) (*resolution.Proposal, error) {
	if raw, ok, err := o.cache.Get(ctx, proposalKey(proposalID)); err == nil && ok {
		var proposal resolution.Proposal
		if jsonErr := json.Unmarshal(raw, &proposal); jsonErr == nil {
			return &proposal, nil
		}
	}

	proposal, err := o.proposals.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	o.cacheProposal(ctx, proposal)
	return proposal, nil
}

func (o *Orchestrator) cacheEvent(ctx context.Context, event *resolution.Event) {
	raw, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = o.cache.Set(ctx, eventKey(event.EventID), raw, cacheTTL)
}

func (o *Orchestrator) cacheProposal(ctx context.Context, proposal *resolution.Proposal) {
	raw, err := json.Marshal(proposal)
	if err != nil {
		return
	}
	_ = o.cache.Set(ctx, proposalKey(proposal.ProposalID), raw, cacheTTL)
}

// invalidateEventCache drops the cached event so the next read fetches
// the freshly PATCHed state from the event-manager peer.
func (o *Orchestrator) invalidateEventCache(ctx context.Context, eventID string) {
	_ = o.cache.Delete(ctx, eventKey(eventID))
}

// patchEventStatus issues the conditional PATCH and, on success,
// invalidates the cached event so a subsequent read observes the new
// status rather than a stale cached one.
func (o *Orchestrator) patchEventStatus(ctx context.Context, eventID string, newStatus, expectedStatus resolution.State) error {
	if err := o.events.PatchEventStatus(ctx, eventID, newStatus, expectedStatus); err != nil {
		return err
	}
	o.invalidateEventCache(ctx, eventID)
	if o.log != nil {
		o.log.LogTransition(ctx, eventID, string(expectedStatus), string(newStatus))
	}
	if o.metrics != nil {
		o.metrics.RecordTransition(string(expectedStatus), string(newStatus))
	}
	return nil
}

// indexProposal appends proposalID to the event's proposal index, the
// mechanism that makes settlement-time cache purge (§4.5) concrete: the
// proposal cache key has no {eventId} suffix to glob-scan, so this small
// per-event index is what lets settleEvent find every proposal cache
// entry tied to eventID. Refreshed (TTL reset) on every call, per spec.
func (o *Orchestrator) indexProposal(ctx context.Context, eventID, proposalID string) {
	ids := o.readProposalIndex(ctx, eventID)
	for _, id := range ids {
		if id == proposalID {
			_ = o.cache.Set(ctx, proposalIndexKey(eventID), mustJSON(ids), cacheTTL)
			return
		}
	}
	ids = append(ids, proposalID)
	_ = o.cache.Set(ctx, proposalIndexKey(eventID), mustJSON(ids), cacheTTL)
}

func (o *Orchestrator) readProposalIndex(ctx context.Context, eventID string) []string {
	raw, ok, err := o.cache.Get(ctx, proposalIndexKey(eventID))
	if err != nil || !ok {
		return nil
	}
	var ids []string
	if jsonErr := json.Unmarshal(raw, &ids); jsonErr != nil {
		return nil
	}
	return ids
}

// purgeEventCache implements settleEvent's step 5: delete every cached
// proposal listed in the event's proposal index, then the index entry
// itself, then the event entry.
func (o *Orchestrator) purgeEventCache(ctx context.Context, eventID string) {
	for _, proposalID := range o.readProposalIndex(ctx, eventID) {
		_ = o.cache.Delete(ctx, proposalKey(proposalID))
	}
	_ = o.cache.Delete(ctx, proposalIndexKey(eventID))
	_ = o.cache.Delete(ctx, eventKey(eventID))
}

func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return []byte("[]")
	}
	return raw
}

func (o *Orchestrator) setPaused(proposalID string, paused bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if paused {
		o.pausedProposals[proposalID] = true
	} else {
		delete(o.pausedProposals, proposalID)
	}
}

func (o *Orchestrator) isPaused(proposalID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pausedProposals[proposalID]
}

func (o *Orchestrator) warnf(ctx context.Context, err error, msg string) {
	if o.log == nil {
		return
	}
	o.log.WithContext(ctx).WithError(err).Warn(msg)
}

// guardFailedf is a small helper so every guard-rejection call site
// produces a consistently worded GuardFailed error.
func guardFailedf(reason string) error {
	return engerrors.GuardFailed(reason)
}
