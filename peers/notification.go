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

// NotificationClient posts arbitrator notifications. Every call here is
// best-effort: dispute handling must stay live even if no arbitrator is
// ever paged.
type NotificationClient struct {
	*Client
}

// NewNotificationClient wraps baseURL as the notification peer, sharing
// RewardClient's lenient, fast-recovering breaker profile.
func NewNotificationClient(baseURL string, timeout time.Duration, log *logging.Logger) *NotificationClient {
	return &NotificationClient{Client: NewClient(baseURL, timeout, resilience.LenientServiceCBConfig(log))}
}

type notifyArbitratorsRequest struct {
	ProposalID  string                  `json:"proposalId"`
	DisputeData resolution.DisputeData  `json:"disputeData"`
}

// NotifyArbitrators informs arbitrators of a newly raised dispute.
func (c *NotificationClient) NotifyArbitrators(ctx context.Context, proposalID string, disputeData resolution.DisputeData) error {
	body := notifyArbitratorsRequest{ProposalID: proposalID, DisputeData: disputeData}
	_, _, err := c.do(ctx, http.MethodPost, "/notify-arbitrators", body, nil)
	if err != nil {
		return engerrors.PeerHTTPBestEffort("notification", "/notify-arbitrators", err)
	}
	return nil
}
