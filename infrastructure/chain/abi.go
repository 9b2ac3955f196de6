package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal ABI fragments for the three contracts this engine calls. Only
// the methods and events the adapter actually invokes are declared; a full
// ABI lives with the contracts themselves and is not this engine's
// responsibility to track.

const proposalManagerABI = `[
	{
		"type": "function",
		"name": "submitProposal",
		"stateMutability": "payable",
		"inputs": [
			{"name": "eventId", "type": "bytes32"},
			{"name": "outcomeHash", "type": "bytes32"},
			{"name": "outcome", "type": "bytes"},
			{"name": "evidenceURI", "type": "string"}
		],
		"outputs": [{"name": "proposalId", "type": "bytes32"}]
	},
	{
		"type": "function",
		"name": "finalizeProposal",
		"stateMutability": "nonpayable",
		"inputs": [{"name": "proposalId", "type": "bytes32"}],
		"outputs": []
	},
	{
		"type": "event",
		"name": "ProposalSubmitted",
		"inputs": [
			{"name": "proposalId", "type": "bytes32", "indexed": true},
			{"name": "eventId", "type": "bytes32", "indexed": true},
			{"name": "proposer", "type": "address", "indexed": false},
			{"name": "livenessExpiry", "type": "uint256", "indexed": false}
		],
		"anonymous": false
	},
	{
		"type": "event",
		"name": "DisputeRaised",
		"inputs": [
			{"name": "proposalId", "type": "bytes32", "indexed": true},
			{"name": "disputer", "type": "address", "indexed": false},
			{"name": "reason", "type": "string", "indexed": false}
		],
		"anonymous": false
	},
	{
		"type": "event",
		"name": "ProposalFinalized",
		"inputs": [
			{"name": "proposalId", "type": "bytes32", "indexed": true},
			{"name": "eventId", "type": "bytes32", "indexed": true}
		],
		"anonymous": false
	}
]`

const oracleRegistryABI = `[
	{
		"type": "function",
		"name": "getEvent",
		"stateMutability": "view",
		"inputs": [{"name": "eventId", "type": "bytes32"}],
		"outputs": [
			{"name": "status", "type": "uint8"},
			{"name": "resolutionTime", "type": "uint256"},
			{"name": "outcomeHash", "type": "bytes32"}
		]
	},
	{
		"type": "function",
		"name": "settleEvent",
		"stateMutability": "nonpayable",
		"inputs": [{"name": "eventId", "type": "bytes32"}],
		"outputs": []
	},
	{
		"type": "event",
		"name": "EventCreated",
		"inputs": [
			{"name": "eventId", "type": "bytes32", "indexed": true},
			{"name": "description", "type": "string", "indexed": false},
			{"name": "resolutionTime", "type": "uint256", "indexed": false}
		],
		"anonymous": false
	}
]`

const stakingManagerABI = `[
	{
		"type": "function",
		"name": "bondOf",
		"stateMutability": "view",
		"inputs": [{"name": "proposalId", "type": "bytes32"}],
		"outputs": [{"name": "amount", "type": "uint256"}]
	}
]`

// ParseOracleRegistryABI and ParseProposalManagerABI expose the parsed
// ABIs for the Chain Indexer (C6), which decodes EventCreated,
// ProposalSubmitted and ProposalFinalized logs directly rather than
// through a bound contract call.
func ParseOracleRegistryABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(oracleRegistryABI))
}

func ParseProposalManagerABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(proposalManagerABI))
}
