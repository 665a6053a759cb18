// Package events fans committed auction state changes out to the
// per-auction Redis channel and the durable notifications and audit
// queues.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type names a domain event on the wire.
type Type string

const (
	BidPlaced        Type = "BID_PLACED"
	BidRejected      Type = "BID_REJECTED"
	AuctionEnded     Type = "AUCTION_ENDED"
	AuctionActivated Type = "AUCTION_ACTIVATED"
	AuctionCreated   Type = "AUCTION_CREATED"
)

// Event is the payload published on `auction:{id}` and to the
// notifications and audit queues.  Only the fields relevant to Type are
// set.
type Event struct {
	Type       Type       `json:"type"`
	AuctionID  uint64     `json:"auctionId"`
	UserID     uint64     `json:"userId,omitempty"`
	BidAmount  float64    `json:"bidAmount,omitempty"`
	WinnerID   *uint64    `json:"winnerId,omitempty"`
	WinnerName string     `json:"winnerName,omitempty"`
	WinningBid *float64   `json:"winningBid,omitempty"`
	ItemRef    string     `json:"itemRef,omitempty"`
	StartTime  *time.Time `json:"startTime,omitempty"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// auditRecord is the audit queue shape: the event plus an `event` field
// naming it.
type auditRecord struct {
	Event
	Name Type `json:"event"`
}

// ChannelPattern matches every auction channel.
const ChannelPattern = "auction:*"

// ChannelFor returns the pub/sub channel of one auction.
func ChannelFor(auctionID uint64) string {
	return fmt.Sprintf("auction:%d", auctionID)
}

// Decode parses a channel payload.
func Decode(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" || ev.AuctionID == 0 {
		return Event{}, fmt.Errorf("decode event: missing type or auctionId")
	}
	return ev, nil
}
