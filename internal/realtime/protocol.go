// Package realtime serves the WebSocket channel: clients join per-auction
// rooms, submit bids and receive state changes relayed from the auction
// pub/sub channels.
package realtime

import (
	"encoding/json"
)

// Inbound events.
const (
	EventJoinAuction  = "joinAuction"
	EventLeaveAuction = "leaveAuction"
	EventPlaceBid     = "placeBid"
	EventAuctionEnd   = "auctionEnd"
)

// Outbound events.
const (
	EventAuctionJoined    = "auctionJoined"
	EventAuctionLeft      = "auctionLeft"
	EventBidAccepted      = "bidAccepted"
	EventBidPlaced        = "bidPlaced"
	EventAuctionEnded     = "auctionEnded"
	EventAuctionActivated = "auctionActivated"
	EventError            = "error"
)

// Frame is one message on the socket, in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type auctionRef struct {
	AuctionID uint64 `json:"auctionId"`
}

type placeBidData struct {
	AuctionID uint64  `json:"auctionId"`
	BidAmount float64 `json:"bidAmount"`
}

// ErrorData is the payload of an error frame.
type ErrorData struct {
	Message   string  `json:"message"`
	AuctionID uint64  `json:"auctionId,omitempty"`
	BidAmount float64 `json:"bidAmount,omitempty"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

func errorFrame(msg string) []byte {
	b, _ := encodeFrame(EventError, ErrorData{Message: msg})
	return b
}
