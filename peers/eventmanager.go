package peers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/R3E-Network/resolution-engine/domain/resolution"
	engerrors "github.com/R3E-Network/resolution-engine/infrastructure/errors"
	"github.com/R3E-Network/resolution-engine/infrastructure/logging"
	"github.com/R3E-Network/resolution-engine/infrastructure/resilience"
)

// EventManagerClient is the critical-path peer: every state advance ends
// in a conditional write here.
type EventManagerClient struct {
	*Client
}

// NewEventManagerClient wraps baseURL as the event-manager peer. It is
// critical-path, so it fails fast: StrictServiceCBConfig trips the
// breaker after fewer consecutive failures and holds it open longer than
// the default.
func NewEventManagerClient(baseURL string, timeout time.Duration, log *logging.Logger) *EventManagerClient {
	return &EventManagerClient{Client: NewClient(baseURL, timeout, resilience.StrictServiceCBConfig(log))}
}

// GetEvent fetches an event by id.
func (c *EventManagerClient) GetEvent(ctx context.Context, eventID string) (*resolution.Event, error) {
	var event resolution.Event
	_, _, err := c.do(ctx, http.MethodGet, "/events/"+eventID, nil, &event)
	if err != nil {
		return nil, engerrors.PeerHTTPCritical("event-manager", "/events/"+eventID, err)
	}
	return &event, nil
}

// patchEventRequest is the conditional PATCH body: the write only lands if
// the event's current status still matches ExpectedStatus.
type patchEventRequest struct {
	Status         resolution.State `json:"status"`
	UpdatedAt      time.Time        `json:"updatedAt"`
	ExpectedStatus resolution.State `json:"expectedStatus"`
}

// PatchEventStatus conditionally transitions eventID to newStatus,
// expecting the peer's current status to equal expectedStatus. A 409
// response means the expectation failed (a concurrent writer moved the
// event first) and surfaces as GuardFailed, not as a transient error: the
// caller should not blindly retry a guard failure as if it were a
// network blip.
func (c *EventManagerClient) PatchEventStatus(ctx context.Context, eventID string, newStatus, expectedStatus resolution.State) error {
	body := patchEventRequest{
		Status:         newStatus,
		UpdatedAt:      time.Now(),
		ExpectedStatus: expectedStatus,
	}
	_, _, err := c.do(ctx, http.MethodPatch, "/events/"+eventID, body, nil)
	if err != nil {
		if code, ok := statusCodeOf(err); ok && code == http.StatusConflict {
			return engerrors.GuardFailed(fmt.Sprintf("event %s not in expected status %s", eventID, expectedStatus))
		}
		return engerrors.PeerHTTPCritical("event-manager", "/events/"+eventID, err)
	}
	return nil
}

// BlockchainEventIngest is what the indexer posts for every newly
// observed on-chain event.
type BlockchainEventIngest struct {
	EventID         string    `json:"eventId"`
	Description     string    `json:"description"`
	ResolutionTime  time.Time `json:"resolutionTime"`
	BlockNumber     uint64    `json:"blockNumber"`
	TransactionHash string    `json:"transactionHash"`
}

// PostBlockchainEvent ingests a newly observed on-chain event. This is
// the indexer's write path, critical to keeping the event-manager's view
// of the chain current.
func (c *EventManagerClient) PostBlockchainEvent(ctx context.Context, payload BlockchainEventIngest) error {
	_, _, err := c.do(ctx, http.MethodPost, "/events/blockchain", payload, nil)
	if err != nil {
		return engerrors.PeerHTTPCritical("event-manager", "/events/blockchain", err)
	}
	return nil
}
