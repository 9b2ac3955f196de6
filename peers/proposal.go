package peers

import (
	"context"
	"net/http"
	"time"

	"github.com/R3E-Network/resolution-engine/domain/resolution"
	engerrors "github.com/R3E-Network/resolution-engine/infrastructure/errors"
	"github.com/R3E-Network/resolution-engine/infrastructure/logging"
	"github.com/R3E-Network/resolution-engine/infrastructure/resilience"
)

// ProposalClient reads proposal state mirrored from the chain.
type ProposalClient struct {
	*Client
}

// NewProposalClient wraps baseURL as the proposal peer. Proposal reads
// feed the transition table directly, so it shares the critical-path
// StrictServiceCBConfig.
func NewProposalClient(baseURL string, timeout time.Duration, log *logging.Logger) *ProposalClient {
	return &ProposalClient{Client: NewClient(baseURL, timeout, resilience.StrictServiceCBConfig(log))}
}

// GetProposal fetches a proposal by id.
func (c *ProposalClient) GetProposal(ctx context.Context, proposalID string) (*resolution.Proposal, error) {
	var proposal resolution.Proposal
	_, _, err := c.do(ctx, http.MethodGet, "/proposals/"+proposalID, nil, &proposal)
	if err != nil {
		return nil, engerrors.PeerHTTPCritical("proposal", "/proposals/"+proposalID, err)
	}
	return &proposal, nil
}
