// Package resolution holds the data model and transition table of the
// optimistic-oracle resolution state machine.
package resolution

import "time"

// State is a node in the resolution state machine.
type State string

const (
	StateCreated           State = "CREATED"
	StateDetecting         State = "DETECTING"
	StateEvidenceGathering State = "EVIDENCE_GATHERING"
	StateProposing         State = "PROPOSING"
	StateLiveness          State = "LIVENESS"
	StateMonitoring        State = "MONITORING"
	StateDisputed          State = "DISPUTED"
	StateArbitration       State = "ARBITRATION"
	StateResolved          State = "RESOLVED"
	StateSettled           State = "SETTLED"
)

// Event is the unit of resolution. The event-manager HTTP peer is its
// authoritative store; the engine keeps a read-through cached copy.
type Event struct {
	EventID         string    `json:"eventId"`
	Description     string    `json:"description"`
	ResolutionTime  time.Time `json:"resolutionTime"`
	Status          State     `json:"status"`
	OutcomeHash     string    `json:"outcomeHash,omitempty"`
	Outcome         []byte    `json:"outcome,omitempty"`
	ConfidenceScore float64   `json:"confidenceScore,omitempty"`
	Proposer        string    `json:"proposer,omitempty"`
	DisputeCount    int       `json:"disputeCount"`
	EvidenceURI     string    `json:"evidenceURI,omitempty"`
	RewardPool      string    `json:"rewardPool,omitempty"`
	Settled         bool      `json:"settled"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ProposalStatus mirrors the on-chain proposal manager's status field.
type ProposalStatus string

const (
	ProposalStatusLiveness   ProposalStatus = "liveness"
	ProposalStatusDisputed   ProposalStatus = "disputed"
	ProposalStatusFinalized  ProposalStatus = "finalized"
	ProposalStatusArbitrated ProposalStatus = "arbitrated"
)

// Proposal is a candidate outcome for an Event, authoritative on the
// proposal manager contract and mirrored by the proposal HTTP peer.
type Proposal struct {
	ProposalID      string         `json:"proposalId"`
	EventID         string         `json:"eventId"`
	OutcomeHash     string         `json:"outcomeHash"`
	Outcome         []byte         `json:"outcome"`
	ConfidenceScore float64        `json:"confidenceScore"`
	EvidenceURI     string         `json:"evidenceURI"`
	BondAmount      string         `json:"bondAmount"`
	SubmittedAt     time.Time      `json:"submittedAt"`
	LivenessExpiry  time.Time      `json:"livenessExpiry"`
	FinalizedAt     *time.Time     `json:"finalizedAt,omitempty"`
	Status          ProposalStatus `json:"status"`
	ChallengeCount  int            `json:"challengeCount"`
}

// ProposalData is the caller-supplied candidate outcome passed to
// initiateProposal, before a proposalId has been minted.
type ProposalData struct {
	Outcome         []byte
	ConfidenceScore float64
	EvidenceURI     string
	BondAmount      string
}

// DisputeData accompanies a detected on-chain dispute.
type DisputeData struct {
	ProposalID string
	Disputer   string
	Reason     string
	RaisedAt   time.Time
}

// IsTerminal reports whether s is the terminal state SETTLED. The holding
// states EVIDENCE_GATHERING and MONITORING also have no outgoing edges in
// the transition table, but IsTerminal reports false for them.
func (s State) IsTerminal() bool {
	return s == StateSettled
}
