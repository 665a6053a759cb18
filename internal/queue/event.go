// Package queue carries bid attempts and domain events over RabbitMQ.
// It owns the queue topology, the JSON payloads exchanged on it and the
// consumer/publisher plumbing used by the API and the worker.
package queue

import (
    "encoding/json"
    "errors"
    "fmt"
    "math"
    "time"

    "github.com/iliyamo/live-auction/internal/model"
)

// Durable queues.  bid-processing, notifications and audit dead-letter
// into dead-letters through the default exchange.
const (
    BidProcessingQueue = "bid-processing"
    NotificationsQueue = "notifications"
    AuditQueue         = "audit"
    DeadLetterQueue    = "dead-letters"
)

// BidWork is one bid attempt waiting for resolution.  Timestamp is the
// moment the ingress admitted it and is informational only; ordering is
// decided by the resolver's compare-and-set, not by this field.
type BidWork struct {
    AuctionID uint64    `json:"auctionId"`
    UserID    uint64    `json:"userId"`
    BidAmount float64   `json:"bidAmount"`
    Timestamp time.Time `json:"timestamp"`
}

// ErrMalformed marks a payload that can never be processed.
var ErrMalformed = errors.New("malformed message")

// DecodeBidWork parses a bid-processing body.  Missing ids or a
// non-positive or out-of-range amount are reported as ErrMalformed.
func DecodeBidWork(body []byte) (BidWork, error) {
    var w BidWork
    if err := json.Unmarshal(body, &w); err != nil {
        return BidWork{}, fmt.Errorf("%w: %v", ErrMalformed, err)
    }
    if w.AuctionID == 0 || w.UserID == 0 {
        return BidWork{}, fmt.Errorf("%w: auctionId and userId are required", ErrMalformed)
    }
    if w.BidAmount <= 0 || math.IsInf(w.BidAmount, 0) || math.IsNaN(w.BidAmount) {
        return BidWork{}, fmt.Errorf("%w: bidAmount must be positive", ErrMalformed)
    }
    if w.BidAmount > model.MaxBidAmount {
        return BidWork{}, fmt.Errorf("%w: bidAmount exceeds %.2f", ErrMalformed, model.MaxBidAmount)
    }
    return w, nil
}
