package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/resolution-engine/domain/resolution"
	"github.com/R3E-Network/resolution-engine/infrastructure/cache"
	"github.com/R3E-Network/resolution-engine/infrastructure/chain"
	engerrors "github.com/R3E-Network/resolution-engine/infrastructure/errors"
	"github.com/R3E-Network/resolution-engine/infrastructure/queue"
)

type harness struct {
	orch      *Orchestrator
	events    *fakeEventStore
	proposals *fakeProposalStore
	disputes  *fakeDisputeStore
	rewards   *fakeRewards
	notifier  *fakeNotifier
	chain     *fakeChain
	scheduler *fakeScheduler
	cache     cache.Cache
}

func newHarness(events *fakeEventStore, proposals *fakeProposalStore) *harness {
	h := &harness{
		events:    events,
		proposals: proposals,
		disputes:  newFakeDisputeStore(),
		rewards:   &fakeRewards{},
		notifier:  &fakeNotifier{},
		chain:     &fakeChain{},
		scheduler: newFakeScheduler(),
		cache:     cache.NewMemoryCache(time.Minute, time.Hour),
	}
	h.orch = New(Config{
		Cache:     h.cache,
		Chain:     h.chain,
		Table:     resolution.NewTable(),
		Scheduler: h.scheduler,
		Events:    h.events,
		Proposals: h.proposals,
		Disputes:  h.disputes,
		Rewards:   h.rewards,
		Notifier:  h.notifier,
	})
	return h
}

func TestInitiateProposalHappyPath(t *testing.T) {
	events := newFakeEventStore(&resolution.Event{EventID: "e1", Status: resolution.StateProposing})
	h := newHarness(events, newFakeProposalStore())
	h.chain.submitResult = chain.SubmitProposalResult{
		ProposalID:      "p1",
		TransactionHash: "0xabc",
		LivenessExpiry:  time.Now().Add(2 * time.Hour),
	}

	proposalID, err := h.orch.InitiateProposal(context.Background(), "e1", resolution.ProposalData{BondAmount: "1000"})
	require.NoError(t, err)
	assert.Equal(t, "p1", proposalID)

	event, err := h.events.GetEvent(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, resolution.StateLiveness, event.Status)

	jobs := h.scheduler.Scan(queue.QueueLivenessMonitoring, queue.StateDelayed, queue.StateWaiting)
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].MatchesProposal("p1"))
}

func TestInitiateProposalRejectsWrongSourceState(t *testing.T) {
	events := newFakeEventStore(&resolution.Event{EventID: "e1", Status: resolution.StateCreated})
	h := newHarness(events, newFakeProposalStore())

	_, err := h.orch.InitiateProposal(context.Background(), "e1", resolution.ProposalData{})
	require.Error(t, err)
	assert.True(t, engerrors.IsKind(err, engerrors.KindInvalidTransition))
	assert.Equal(t, 0, h.chain.finalizeCalls)
}

func TestHandleDisputeDetectedCancelsLivenessJobsBeforeReturning(t *testing.T) {
	events := newFakeEventStore(&resolution.Event{EventID: "e1", Status: resolution.StateLiveness})
	h := newHarness(events, newFakeProposalStore(&resolution.Proposal{
		ProposalID: "p1", EventID: "e1", Status: resolution.ProposalStatusLiveness,
		LivenessExpiry: time.Now().Add(time.Hour),
	}))
	_, err := h.scheduler.Enqueue(context.Background(), queue.QueueLivenessMonitoring, queue.JobTypeLiveness,
		mustJSON(queue.PayloadProposalID{ProposalID: "p1", EventID: "e1"}), queue.EnqueueOptions{Delay: time.Hour})
	require.NoError(t, err)

	err = h.orch.HandleDisputeDetected(context.Background(), "p1", resolution.DisputeData{ProposalID: "p1"})
	require.NoError(t, err)

	event, err := h.events.GetEvent(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, resolution.StateDisputed, event.Status)

	remaining := h.scheduler.Scan(queue.QueueLivenessMonitoring, queue.StateDelayed, queue.StateWaiting)
	assert.Empty(t, remaining)
	assert.Equal(t, 1, h.notifier.calls)
}

func TestFinalizeProposalFailsGuardBeforeExpiry(t *testing.T) {
	events := newFakeEventStore(&resolution.Event{EventID: "e1", Status: resolution.StateLiveness})
	h := newHarness(events, newFakeProposalStore(&resolution.Proposal{
		ProposalID: "p1", EventID: "e1", Status: resolution.ProposalStatusLiveness,
		LivenessExpiry: time.Now().Add(time.Hour),
	}))

	err := h.orch.FinalizeProposal(context.Background(), "p1")
	require.Error(t, err)
	assert.True(t, engerrors.IsKind(err, engerrors.KindGuardFailed))
	assert.Equal(t, 0, h.chain.finalizeCalls)
}

func TestFinalizeProposalFailsGuardWhenPaused(t *testing.T) {
	events := newFakeEventStore(&resolution.Event{EventID: "e1", Status: resolution.StateDisputed})
	h := newHarness(events, newFakeProposalStore(&resolution.Proposal{
		ProposalID: "p1", EventID: "e1", Status: resolution.ProposalStatusLiveness,
		LivenessExpiry: time.Now().Add(-time.Minute),
	}))
	h.orch.setPaused("p1", true)

	err := h.orch.FinalizeProposal(context.Background(), "p1")
	require.Error(t, err)
	assert.True(t, engerrors.IsKind(err, engerrors.KindGuardFailed))
	assert.Equal(t, 0, h.chain.finalizeCalls)
}

func TestFinalizeProposalFailsGuardWhenDisputeExists(t *testing.T) {
	events := newFakeEventStore(&resolution.Event{EventID: "e1", Status: resolution.StateLiveness})
	h := newHarness(events, newFakeProposalStore(&resolution.Proposal{
		ProposalID: "p1", EventID: "e1", Status: resolution.ProposalStatusLiveness,
		LivenessExpiry: time.Now().Add(-time.Minute),
	}))
	h.disputes.set("p1", []resolution.DisputeData{{ProposalID: "p1"}})

	err := h.orch.FinalizeProposal(context.Background(), "p1")
	require.Error(t, err)
	assert.True(t, engerrors.IsKind(err, engerrors.KindGuardFailed))
	assert.Equal(t, 0, h.chain.finalizeCalls)
}

func TestFinalizeProposalHappyPathSchedulesSettlement(t *testing.T) {
	events := newFakeEventStore(&resolution.Event{EventID: "e1", Status: resolution.StateLiveness})
	h := newHarness(events, newFakeProposalStore(&resolution.Proposal{
		ProposalID: "p1", EventID: "e1", Status: resolution.ProposalStatusLiveness,
		LivenessExpiry: time.Now().Add(-time.Minute),
	}))

	err := h.orch.FinalizeProposal(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, h.chain.finalizeCalls)

	event, err := h.events.GetEvent(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, resolution.StateResolved, event.Status)

	jobs := h.scheduler.Scan(queue.QueueSettlementProcessing, queue.StateDelayed, queue.StateWaiting)
	require.Len(t, jobs, 1)
	assert.Equal(t, queue.JobTypeSettlement, jobs[0].Type)
}

func TestSettleEventPurgesCacheAndDistributesRewards(t *testing.T) {
	events := newFakeEventStore(&resolution.Event{EventID: "e1", Status: resolution.StateResolved})
	h := newHarness(events, newFakeProposalStore(&resolution.Proposal{ProposalID: "p1", EventID: "e1"}))
	h.orch.indexProposal(context.Background(), "e1", "p1")
	h.orch.cacheProposal(context.Background(), &resolution.Proposal{ProposalID: "p1", EventID: "e1"})
	h.orch.cacheEvent(context.Background(), &resolution.Event{EventID: "e1", Status: resolution.StateResolved})

	err := h.orch.SettleEvent(context.Background(), "e1")
	require.NoError(t, err)

	event, err := h.events.GetEvent(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, resolution.StateSettled, event.Status)
	assert.Equal(t, []string{"e1"}, h.rewards.calls)

	_, ok, _ := h.cache.Get(context.Background(), eventKey("e1"))
	assert.False(t, ok)
	_, ok, _ = h.cache.Get(context.Background(), proposalKey("p1"))
	assert.False(t, ok)
	_, ok, _ = h.cache.Get(context.Background(), proposalIndexKey("e1"))
	assert.False(t, ok)
}

func TestSettleEventFailsWhenNotResolved(t *testing.T) {
	events := newFakeEventStore(&resolution.Event{EventID: "e1", Status: resolution.StateLiveness})
	h := newHarness(events, newFakeProposalStore())

	err := h.orch.SettleEvent(context.Background(), "e1")
	require.Error(t, err)
	assert.True(t, engerrors.IsKind(err, engerrors.KindGuardFailed))
	assert.Equal(t, 0, h.chain.settleCalls)
}

func TestBatchSettleEventsReportsPartialFailure(t *testing.T) {
	events := newFakeEventStore(
		&resolution.Event{EventID: "e1", Status: resolution.StateResolved},
		&resolution.Event{EventID: "e2", Status: resolution.StateLiveness},
		&resolution.Event{EventID: "e3", Status: resolution.StateResolved},
	)
	h := newHarness(events, newFakeProposalStore())

	result := h.orch.BatchSettleEvents(context.Background(), []string{"e1", "e2", "e3"})
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
}

func TestProcessEventIsIdempotent(t *testing.T) {
	events := newFakeEventStore(&resolution.Event{EventID: "e1", Status: resolution.StateLiveness})
	h := newHarness(events, newFakeProposalStore())

	first, err := h.orch.ProcessEvent(context.Background(), "e1")
	require.NoError(t, err)
	second, err := h.orch.ProcessEvent(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, first.Event.Status, second.Event.Status)

	jobs := h.scheduler.Scan(queue.QueueLivenessMonitoring, queue.StateDelayed, queue.StateWaiting)
	assert.Empty(t, jobs)
}

func TestPauseLivenessMonitoringIsIdempotent(t *testing.T) {
	events := newFakeEventStore(&resolution.Event{EventID: "e1", Status: resolution.StateLiveness})
	h := newHarness(events, newFakeProposalStore())
	_, err := h.scheduler.Enqueue(context.Background(), queue.QueueLivenessMonitoring, queue.JobTypeLiveness,
		mustJSON(queue.PayloadProposalID{ProposalID: "p1"}), queue.EnqueueOptions{Delay: time.Hour})
	require.NoError(t, err)

	removedFirst := h.orch.PauseLivenessMonitoring(context.Background(), "p1")
	removedSecond := h.orch.PauseLivenessMonitoring(context.Background(), "p1")
	assert.Equal(t, 1, removedFirst)
	assert.Equal(t, 0, removedSecond)
}
