package peers

import (
	"context"
	"net/http"
	"time"

	engerrors "github.com/R3E-Network/resolution-engine/infrastructure/errors"
	"github.com/R3E-Network/resolution-engine/infrastructure/logging"
	"github.com/R3E-Network/resolution-engine/infrastructure/resilience"
)

// RewardClient posts to the reward-distribution service. Every call here
// is best-effort: rewards are eventually reconcilable, so a failure here
// must never fail the settlement it's attached to.
type RewardClient struct {
	*Client
}

// NewRewardClient wraps baseURL as the reward peer. Best-effort calls use
// LenientServiceCBConfig: tolerate more failures before tripping and
// recover the breaker sooner, since a reward-service outage must never
// back up onto the settlement path.
func NewRewardClient(baseURL string, timeout time.Duration, log *logging.Logger) *RewardClient {
	return &RewardClient{Client: NewClient(baseURL, timeout, resilience.LenientServiceCBConfig(log))}
}

type distributeRequest struct {
	EventID string `json:"eventId"`
}

// Distribute requests reward distribution for eventID. Callers should log
// and swallow a non-nil error rather than fail the settlement in
// progress.
func (c *RewardClient) Distribute(ctx context.Context, eventID string) error {
	_, _, err := c.do(ctx, http.MethodPost, "/distribute", distributeRequest{EventID: eventID}, nil)
	if err != nil {
		return engerrors.PeerHTTPBestEffort("reward", "/distribute", err)
	}
	return nil
}
