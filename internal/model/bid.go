package model

import "time"

// Bid records a committed bid.  Rows are append-only: one is inserted
// in the same transaction as the auction's version bump and never
// updated afterwards.
//
// Fields:
//  ID        – primary key identifier.
//  AuctionID – auction the bid was placed on.
//  UserID    – bidder.
//  BidAmount – amount offered.
//  CreatedAt – commit timestamp.
type Bid struct {
    ID        uint64    `json:"id"`        // bids.id
    AuctionID uint64    `json:"auctionId"` // bids.auction_id
    UserID    uint64    `json:"userId"`    // bids.user_id
    BidAmount float64   `json:"bidAmount"` // bids.bid_amount
    CreatedAt time.Time `json:"createdAt"` // bids.created_at
}

// BidDetail is a bid joined with its bidder's display name.
type BidDetail struct {
    Bid
    UserName string `json:"userName"`
}

// MaxBidAmount is the largest value bids.bid_amount and
// auctions.current_highest_bid can hold (DECIMAL(14,2)).
const MaxBidAmount = 999999999999.99
