package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/R3E-Network/resolution-engine/domain/resolution"
	engerrors "github.com/R3E-Network/resolution-engine/infrastructure/errors"
	"github.com/R3E-Network/resolution-engine/infrastructure/logging"
	"github.com/R3E-Network/resolution-engine/infrastructure/resilience"
)

// Config configures the EVM-backed Chain Adapter.
type Config struct {
	RPCURL                 string
	PrivateKeyHex          string
	OracleRegistryAddress  string
	ProposalManagerAddress string
	StakingManagerAddress  string
	DefaultLivenessWindow  time.Duration
}

// SubmitProposalResult is what submitProposal hands back to the
// orchestrator.
type SubmitProposalResult struct {
	ProposalID      string
	TransactionHash string
	LivenessExpiry  time.Time
}

// EventRecord is the read-only view of an on-chain event.
type EventRecord struct {
	Status         uint8
	ResolutionTime time.Time
	OutcomeHash    [32]byte
}

// Adapter is the Chain Adapter's interface, satisfied by EVMAdapter and by
// test fakes.
type Adapter interface {
	SubmitProposal(ctx context.Context, eventID string, data resolution.ProposalData) (SubmitProposalResult, error)
	FinalizeProposal(ctx context.Context, proposalID string) (string, error)
	SettleEvent(ctx context.Context, eventID string) (string, error)
	GetEvent(ctx context.Context, eventID string) (EventRecord, error)
}

// EVMAdapter binds the oracle's three contracts to a single EVM client and
// a single signing key. It owns nonce management: every state-changing
// call runs under mu, so the transactor's nonce source is never read
// concurrently from two goroutines.
type EVMAdapter struct {
	client       *ethclient.Client
	transactOpts *bind.TransactOpts
	registry     *Registry

	mu sync.Mutex
	cb *resilience.CircuitBreaker

	defaultLivenessWindow time.Duration
	log                   *logging.Logger
	metrics               ChainMetrics

	proposalManagerABI abi.ABI
}

// ChainMetrics is the subset of *metrics.Metrics the adapter reports
// against. nil is valid: a nil ChainMetrics disables reporting.
type ChainMetrics interface {
	RecordChainCall(operation, outcome string, duration time.Duration)
	SetCircuitState(name string, state resilience.State)
}

// NewEVMAdapter dials the configured RPC endpoint, loads the signing key,
// and binds the three contracts. A failure here is fatal: the engine
// cannot do anything useful without a working chain connection.
func NewEVMAdapter(ctx context.Context, cfg Config, log *logging.Logger, m ChainMetrics) (*EVMAdapter, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, engerrors.Config("chain: dial RPC", err)
	}

	chainID, err := client.NetworkID(ctx)
	if err != nil {
		return nil, engerrors.Config("chain: fetch network id", err)
	}

	privateKey, err := gethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, engerrors.Config("chain: parse private key", err)
	}

	transactOpts, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		return nil, engerrors.Config("chain: build transactor", err)
	}

	registry := NewRegistry()
	if err := registry.Bind(ContractProposalManager, cfg.ProposalManagerAddress, proposalManagerABI, client); err != nil {
		return nil, engerrors.Config("chain: bind proposalManager", err)
	}
	if err := registry.Bind(ContractOracleRegistry, cfg.OracleRegistryAddress, oracleRegistryABI, client); err != nil {
		return nil, engerrors.Config("chain: bind oracleRegistry", err)
	}
	if err := registry.Bind(ContractStakingManager, cfg.StakingManagerAddress, stakingManagerABI, client); err != nil {
		return nil, engerrors.Config("chain: bind stakingManager", err)
	}

	parsedProposalManagerABI, err := abi.JSON(strings.NewReader(proposalManagerABI))
	if err != nil {
		return nil, engerrors.Config("chain: parse proposalManager ABI", err)
	}

	defaultLivenessWindow := cfg.DefaultLivenessWindow
	if defaultLivenessWindow <= 0 {
		defaultLivenessWindow = 2 * time.Hour
	}

	return &EVMAdapter{
		client:                client,
		transactOpts:          transactOpts,
		registry:              registry,
		cb:                    resilience.New(resilience.DefaultServiceCBConfig(log)),
		defaultLivenessWindow: defaultLivenessWindow,
		log:                   log,
		metrics:               m,
		proposalManagerABI:    parsedProposalManagerABI,
	}, nil
}

// SubmitProposal submits a candidate outcome, attaching bondAmount as the
// transaction value, and waits for one confirmation.
func (a *EVMAdapter) SubmitProposal(ctx context.Context, eventID string, data resolution.ProposalData) (SubmitProposalResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	contract, err := a.registry.Get(ContractProposalManager)
	if err != nil {
		return SubmitProposalResult{}, engerrors.PermanentChain("submitProposal", err)
	}

	bond, ok := new(big.Int).SetString(data.BondAmount, 10)
	if !ok {
		return SubmitProposalResult{}, engerrors.PermanentChain("submitProposal", fmt.Errorf("invalid bond amount %q", data.BondAmount))
	}

	eventIDHash := gethcrypto.Keccak256Hash([]byte(eventID))
	outcomeHash := gethcrypto.Keccak256Hash(data.Outcome)

	var tx *types.Transaction
	err = a.withResilience(ctx, "submitProposal", func(ctx context.Context) error {
		opts := *a.transactOpts
		opts.Context = ctx
		opts.Value = bond
		built, txErr := contract.Transact(&opts, "submitProposal", eventIDHash, outcomeHash, data.Outcome, data.EvidenceURI)
		if txErr != nil {
			return txErr
		}
		tx = built
		return nil
	})
	if err != nil {
		return SubmitProposalResult{}, err
	}

	receipt, err := bind.WaitMined(ctx, a.client, tx)
	if err != nil {
		return SubmitProposalResult{}, engerrors.TransientChain("submitProposal.waitMined", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return SubmitProposalResult{}, engerrors.PermanentChain("submitProposal", fmt.Errorf("transaction %s reverted", tx.Hash()))
	}

	return a.decodeSubmitProposalResult(ctx, eventID, tx.Hash().Hex(), receipt), nil
}

// decodeSubmitProposalResult reads livenessExpiry and proposalId back from
// the ProposalSubmitted event in the receipt's logs, the contract
// emission being authoritative. A malformed or missing event falls back
// to now + defaultLivenessWindow and a locally synthesized proposalId,
// logging a warning — the local clock is the fallback, never the source
// of truth.
func (a *EVMAdapter) decodeSubmitProposalResult(ctx context.Context, eventID, txHash string, receipt *types.Receipt) SubmitProposalResult {
	eventSig := a.proposalManagerABI.Events["ProposalSubmitted"].ID

	for _, l := range receipt.Logs {
		if len(l.Topics) < 2 || l.Topics[0] != eventSig {
			continue
		}
		var decoded struct {
			Proposer       common.Address
			LivenessExpiry *big.Int
		}
		if err := a.proposalManagerABI.UnpackIntoInterface(&decoded, "ProposalSubmitted", l.Data); err != nil {
			if a.log != nil {
				a.log.WithContext(ctx).WithError(err).Warn("submitProposal: could not decode ProposalSubmitted event, falling back to local clock")
			}
			break
		}
		return SubmitProposalResult{
			ProposalID:      l.Topics[1].Hex(),
			TransactionHash: txHash,
			LivenessExpiry:  time.Unix(decoded.LivenessExpiry.Int64(), 0),
		}
	}

	if a.log != nil {
		a.log.WithContext(ctx).Warn("submitProposal: ProposalSubmitted event not found in receipt logs, falling back to local clock")
	}
	fallbackID := gethcrypto.Keccak256Hash([]byte(fmt.Sprintf("%s:%d", eventID, time.Now().UnixNano())))
	return SubmitProposalResult{
		ProposalID:      fallbackID.Hex(),
		TransactionHash: txHash,
		LivenessExpiry:  time.Now().Add(a.defaultLivenessWindow),
	}
}

// FinalizeProposal finalizes proposalId, waiting for one confirmation.
func (a *EVMAdapter) FinalizeProposal(ctx context.Context, proposalID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	contract, err := a.registry.Get(ContractProposalManager)
	if err != nil {
		return "", engerrors.PermanentChain("finalizeProposal", err)
	}

	var tx *types.Transaction
	err = a.withResilience(ctx, "finalizeProposal", func(ctx context.Context) error {
		opts := *a.transactOpts
		opts.Context = ctx
		built, txErr := contract.Transact(&opts, "finalizeProposal", common.HexToHash(proposalID))
		if txErr != nil {
			return txErr
		}
		tx = built
		return nil
	})
	if err != nil {
		return "", err
	}

	receipt, err := bind.WaitMined(ctx, a.client, tx)
	if err != nil {
		return "", engerrors.TransientChain("finalizeProposal.waitMined", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", engerrors.PermanentChain("finalizeProposal", fmt.Errorf("transaction %s reverted", tx.Hash()))
	}
	return tx.Hash().Hex(), nil
}

// SettleEvent hashes eventID to bytes32 and calls settleEvent on the
// oracle registry, waiting for one confirmation.
func (a *EVMAdapter) SettleEvent(ctx context.Context, eventID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	contract, err := a.registry.Get(ContractOracleRegistry)
	if err != nil {
		return "", engerrors.PermanentChain("settleEvent", err)
	}

	eventIDHash := gethcrypto.Keccak256Hash([]byte(eventID))

	var tx *types.Transaction
	err = a.withResilience(ctx, "settleEvent", func(ctx context.Context) error {
		opts := *a.transactOpts
		opts.Context = ctx
		built, txErr := contract.Transact(&opts, "settleEvent", eventIDHash)
		if txErr != nil {
			return txErr
		}
		tx = built
		return nil
	})
	if err != nil {
		return "", err
	}

	receipt, err := bind.WaitMined(ctx, a.client, tx)
	if err != nil {
		return "", engerrors.TransientChain("settleEvent.waitMined", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", engerrors.PermanentChain("settleEvent", fmt.Errorf("transaction %s reverted", tx.Hash()))
	}
	return tx.Hash().Hex(), nil
}

// GetEvent is a read-only call; it does not take the nonce mutex.
func (a *EVMAdapter) GetEvent(ctx context.Context, eventID string) (EventRecord, error) {
	contract, err := a.registry.Get(ContractOracleRegistry)
	if err != nil {
		return EventRecord{}, engerrors.PermanentChain("getEvent", err)
	}

	eventIDHash := gethcrypto.Keccak256Hash([]byte(eventID))

	var results []interface{}
	err = a.withResilience(ctx, "getEvent", func(ctx context.Context) error {
		return contract.Call(&bind.CallOpts{Context: ctx}, &results, "getEvent", eventIDHash)
	})
	if err != nil {
		return EventRecord{}, err
	}
	if len(results) != 3 {
		return EventRecord{}, engerrors.PermanentChain("getEvent", fmt.Errorf("unexpected result shape: %d fields", len(results)))
	}

	status := results[0].(uint8)
	resolutionTime := results[1].(*big.Int)
	outcomeHash := results[2].([32]byte)

	return EventRecord{
		Status:         status,
		ResolutionTime: time.Unix(resolutionTime.Int64(), 0),
		OutcomeHash:    outcomeHash,
	}, nil
}

// Client exposes the underlying ethclient.Client so other components
// (the chain indexer) can read chain state without a second dial.
func (a *EVMAdapter) Client() *ethclient.Client {
	return a.client
}

// withResilience wraps fn in the circuit breaker and, for TransientChain
// classified errors only, exponential-backoff retry. PermanentChain
// errors stop retrying immediately and surface as-is.
func (a *EVMAdapter) withResilience(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := a.cb.Execute(ctx, func() error {
		return resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
			err := fn(ctx)
			if err == nil {
				return nil
			}
			classified := classifyChainErr(operation, err)
			if engerrors.IsKind(classified, engerrors.KindPermanentChain) {
				return backoff.Permanent(classified)
			}
			return classified
		})
	})

	if a.log != nil {
		a.log.LogChainCall(ctx, operation, "", err)
	}
	if a.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		a.metrics.RecordChainCall(operation, outcome, time.Since(start))
		a.metrics.SetCircuitState("chain-adapter", a.cb.State())
	}
	return err
}

// classifyChainErr maps a raw chain error into TransientChain or
// PermanentChain. Reverts and insufficient-funds/bond errors are
// permanent; everything else (timeouts, connection resets, rate limits)
// is treated as transient and retried.
func classifyChainErr(operation string, err error) error {
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{"revert", "insufficient funds", "insufficient bond", "execution reverted", "nonce too low", "already known"}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return engerrors.PermanentChain(operation, err)
		}
	}
	return engerrors.TransientChain(operation, err)
}
