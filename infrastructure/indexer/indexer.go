// Package indexer implements the Chain Indexer (C6): a poll-based loop
// that scans the oracle registry and proposal manager contracts for new
// logs and forwards normalized records to the event-manager peer,
// repairing any divergence between on-chain and engine state left by a
// failure mid-way through the orchestrator's write path.
package indexer

import (
	"context"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/R3E-Network/resolution-engine/infrastructure/chain"
	"github.com/R3E-Network/resolution-engine/infrastructure/logging"
	"github.com/R3E-Network/resolution-engine/peers"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultReplayBlocks = uint64(100)
)

// ChainReader is the subset of *ethclient.Client the indexer needs: a
// head lookup and a bounded-range log scan.
type ChainReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// EventPoster is the subset of EventManagerClient the indexer needs.
type EventPoster interface {
	PostBlockchainEvent(ctx context.Context, payload peers.BlockchainEventIngest) error
}

// IndexerMetrics is the subset of *metrics.Metrics the indexer reports
// against. A nil IndexerMetrics disables reporting.
type IndexerMetrics interface {
	SetIndexerLag(network string, head, lastIndexed uint64)
}

// Config wires the indexer's dependencies.
type Config struct {
	Network                string
	ChainReader            ChainReader
	OracleRegistryAddress  string
	ProposalManagerAddress string
	Poster                 EventPoster
	Cursor                 *CursorStore
	PollInterval           time.Duration
	ReplayBlocks           uint64
	Log                    *logging.Logger
	Metrics                IndexerMetrics
}

// Indexer is the Chain Indexer (C6).
type Indexer struct {
	network                string
	chainReader             ChainReader
	oracleRegistryAddress  common.Address
	proposalManagerAddress common.Address
	oracleABI              abi.ABI
	proposalABI            abi.ABI
	poster                 EventPoster
	cursor                 *CursorStore
	pollInterval           time.Duration
	replayBlocks           uint64
	log                    *logging.Logger
	metrics                IndexerMetrics

	mu               sync.Mutex
	lastIndexedBlock uint64
	seeded           bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Indexer from cfg, parsing the oracle registry and
// proposal manager ABIs once at construction time.
func New(cfg Config) (*Indexer, error) {
	oracleABI, err := chain.ParseOracleRegistryABI()
	if err != nil {
		return nil, err
	}
	proposalABI, err := chain.ParseProposalManagerABI()
	if err != nil {
		return nil, err
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	replayBlocks := cfg.ReplayBlocks
	if replayBlocks == 0 {
		replayBlocks = defaultReplayBlocks
	}

	return &Indexer{
		network:                 cfg.Network,
		chainReader:             cfg.ChainReader,
		oracleRegistryAddress:   common.HexToAddress(cfg.OracleRegistryAddress),
		proposalManagerAddress:  common.HexToAddress(cfg.ProposalManagerAddress),
		oracleABI:               oracleABI,
		proposalABI:             proposalABI,
		poster:                  cfg.Poster,
		cursor:                  cfg.Cursor,
		pollInterval:            pollInterval,
		replayBlocks:            replayBlocks,
		log:                     cfg.Log,
		metrics:                 cfg.Metrics,
	}, nil
}

// Start seeds the cursor (from Postgres if persisted, otherwise
// head-replayBlocks) and begins the polling loop.
func (idx *Indexer) Start(ctx context.Context) error {
	if err := idx.seed(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	idx.cancel = cancel

	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		ticker := time.NewTicker(idx.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				idx.tick(runCtx)
			}
		}
	}()

	if idx.log != nil {
		idx.log.WithContext(runCtx).Info("chain indexer started")
	}
	return nil
}

// Stop cancels the polling loop and waits for it to exit.
func (idx *Indexer) Stop(ctx context.Context) error {
	if idx.cancel != nil {
		idx.cancel()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		idx.wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (idx *Indexer) seed(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.seeded {
		return nil
	}

	if idx.cursor != nil {
		if persisted, ok, err := idx.cursor.Load(ctx, idx.network); err != nil {
			return err
		} else if ok {
			idx.lastIndexedBlock = persisted
			idx.seeded = true
			return nil
		}
	}

	head, err := idx.chainReader.HeaderByNumber(ctx, nil)
	if err != nil {
		return err
	}
	headNumber := head.Number.Uint64()
	seed := uint64(0)
	if headNumber > idx.replayBlocks {
		seed = headNumber - idx.replayBlocks
	}
	idx.lastIndexedBlock = seed
	idx.seeded = true
	if idx.cursor != nil {
		return idx.cursor.Save(ctx, idx.network, seed)
	}
	return nil
}

// Tick runs one poll cycle. It is exported so callers (and tests) can
// drive the indexer synchronously instead of waiting on the ticker.
func (idx *Indexer) Tick(ctx context.Context) error {
	return idx.tick(ctx)
}

func (idx *Indexer) tick(ctx context.Context) error {
	idx.mu.Lock()
	from := idx.lastIndexedBlock + 1
	idx.mu.Unlock()

	head, err := idx.chainReader.HeaderByNumber(ctx, nil)
	if err != nil {
		idx.warn(ctx, err, "indexer: fetch head failed")
		return err
	}
	to := head.Number.Uint64()
	if idx.metrics != nil {
		idx.metrics.SetIndexerLag(idx.network, to, from-1)
	}
	if to < from {
		return nil
	}

	logs, err := idx.chainReader.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{idx.oracleRegistryAddress, idx.proposalManagerAddress},
	})
	if err != nil {
		idx.warn(ctx, err, "indexer: filter logs failed")
		return err
	}

	for _, l := range logs {
		record, ok := idx.decode(l)
		if !ok {
			continue
		}
		if err := idx.poster.PostBlockchainEvent(ctx, record); err != nil {
			idx.warn(ctx, err, "indexer: post blockchain event failed, will reprocess this range next tick")
			return err
		}
	}

	idx.mu.Lock()
	idx.lastIndexedBlock = to
	idx.mu.Unlock()
	if idx.cursor != nil {
		if err := idx.cursor.Save(ctx, idx.network, to); err != nil {
			idx.warn(ctx, err, "indexer: persist cursor failed")
			return err
		}
	}
	if idx.metrics != nil {
		idx.metrics.SetIndexerLag(idx.network, to, to)
	}
	return nil
}

// decode maps a raw log into the event-manager's ingest shape. Logs from
// events this indexer doesn't track (or a decode failure) are skipped;
// the event-manager peer deduplicates by (eventId, transactionHash), so
// reprocessing the same range on a later failure is safe.
func (idx *Indexer) decode(l types.Log) (peers.BlockchainEventIngest, bool) {
	if len(l.Topics) == 0 {
		return peers.BlockchainEventIngest{}, false
	}

	switch l.Topics[0] {
	case idx.oracleABI.Events["EventCreated"].ID:
		var decoded struct {
			Description    string
			ResolutionTime *big.Int
		}
		if err := idx.oracleABI.UnpackIntoInterface(&decoded, "EventCreated", l.Data); err != nil {
			return peers.BlockchainEventIngest{}, false
		}
		eventID := l.Topics[1].Hex()
		return peers.BlockchainEventIngest{
			EventID:         eventID,
			Description:     decoded.Description,
			ResolutionTime:  time.Unix(decoded.ResolutionTime.Int64(), 0),
			BlockNumber:     l.BlockNumber,
			TransactionHash: l.TxHash.Hex(),
		}, true

	case idx.proposalABI.Events["ProposalSubmitted"].ID:
		// indexed (proposalId, eventId): Topics[1]=proposalId, Topics[2]=eventId.
		if len(l.Topics) < 3 {
			return peers.BlockchainEventIngest{}, false
		}
		return peers.BlockchainEventIngest{
			EventID:         l.Topics[2].Hex(),
			Description:     "proposal submitted",
			BlockNumber:     l.BlockNumber,
			TransactionHash: l.TxHash.Hex(),
		}, true

	case idx.proposalABI.Events["ProposalFinalized"].ID:
		// indexed (proposalId, eventId): Topics[1]=proposalId, Topics[2]=eventId.
		if len(l.Topics) < 3 {
			return peers.BlockchainEventIngest{}, false
		}
		return peers.BlockchainEventIngest{
			EventID:         l.Topics[2].Hex(),
			Description:     "proposal finalized",
			BlockNumber:     l.BlockNumber,
			TransactionHash: l.TxHash.Hex(),
		}, true

	default:
		return peers.BlockchainEventIngest{}, false
	}
}

func (idx *Indexer) warn(ctx context.Context, err error, msg string) {
	if idx.log == nil {
		return
	}
	idx.log.WithContext(ctx).WithError(err).Warn(msg)
}
