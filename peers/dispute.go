package peers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/R3E-Network/resolution-engine/domain/resolution"
	engerrors "github.com/R3E-Network/resolution-engine/infrastructure/errors"
	"github.com/R3E-Network/resolution-engine/infrastructure/logging"
	"github.com/R3E-Network/resolution-engine/infrastructure/resilience"
)

// DisputeClient reads disputes raised against a proposal.
type DisputeClient struct {
	*Client
}

// NewDisputeClient wraps baseURL as the dispute peer. A missed dispute
// gates finalization incorrectly, so it is critical-path too.
func NewDisputeClient(baseURL string, timeout time.Duration, log *logging.Logger) *DisputeClient {
	return &DisputeClient{Client: NewClient(baseURL, timeout, resilience.StrictServiceCBConfig(log))}
}

// ListDisputes returns every dispute raised against proposalID.
func (c *DisputeClient) ListDisputes(ctx context.Context, proposalID string) ([]resolution.DisputeData, error) {
	var disputes []resolution.DisputeData
	path := "/disputes?" + url.Values{"proposalId": {proposalID}}.Encode()
	_, _, err := c.do(ctx, http.MethodGet, path, nil, &disputes)
	if err != nil {
		return nil, engerrors.PeerHTTPCritical("dispute", "/disputes", err)
	}
	return disputes, nil
}
