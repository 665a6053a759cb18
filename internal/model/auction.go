package model

import "time"

// AuctionStatus is the lifecycle state of an auction.  Transitions only
// move forward: PENDING -> ACTIVE -> ENDED.  PENDING may also jump
// straight to ENDED when an auction is closed before it ever opened.
type AuctionStatus string

const (
    AuctionPending AuctionStatus = "PENDING"
    AuctionActive  AuctionStatus = "ACTIVE"
    AuctionEnded   AuctionStatus = "ENDED"
)

// Valid reports whether s is one of the known statuses.
func (s AuctionStatus) Valid() bool {
    switch s {
    case AuctionPending, AuctionActive, AuctionEnded:
        return true
    }
    return false
}

func (s AuctionStatus) rank() int {
    switch s {
    case AuctionPending:
        return 0
    case AuctionActive:
        return 1
    case AuctionEnded:
        return 2
    }
    return -1
}

// CanTransitionTo reports whether moving from s to next is a forward
// transition.  Staying in the same state is not a transition.
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
    if !s.Valid() || !next.Valid() {
        return false
    }
    return next.rank() > s.rank()
}

// Auction represents a row in the `auctions` table.  The bid resolver
// owns CurrentHighestBid, WinnerID and Version; the lifecycle service
// owns Status.
//
// Fields:
//  ID                – primary key identifier.
//  ItemRef           – reference to the item being sold.
//  StartingBid       – opening price; CurrentHighestBid starts here.
//  CurrentHighestBid – amount of the last committed bid, never decreases.
//  StartTime         – when bidding opens.
//  EndTime           – when bidding closes.
//  Status            – PENDING, ACTIVE or ENDED.
//  WinnerID          – bidder of the last committed bid (nullable).
//  Version           – revision counter, +1 per committed bid; the CAS fence.
//  CreatedAt         – creation timestamp.
//  UpdatedAt         – last update timestamp.
type Auction struct {
    ID                uint64        `json:"id"`                  // auctions.id
    ItemRef           string        `json:"itemRef"`             // auctions.item_ref
    StartingBid       float64       `json:"startingBid"`         // auctions.starting_bid
    CurrentHighestBid float64       `json:"currentHighestBid"`   // auctions.current_highest_bid
    StartTime         time.Time     `json:"startTime"`           // auctions.start_time
    EndTime           time.Time     `json:"endTime"`             // auctions.end_time
    Status            AuctionStatus `json:"status"`              // auctions.status
    WinnerID          *uint64       `json:"winnerId"`            // auctions.winner_id (nullable)
    Version           int64         `json:"version"`             // auctions.version
    CreatedAt         time.Time     `json:"createdAt"`           // auctions.created_at
    UpdatedAt         time.Time     `json:"updatedAt"`           // auctions.updated_at
}

// Expired reports whether the auction's end time has passed at now.
func (a Auction) Expired(now time.Time) bool { return now.After(a.EndTime) }

// BidState is the subset of an auction row read by the resolver inside
// its transaction.
type BidState struct {
    AuctionID         uint64
    Status            AuctionStatus
    CurrentHighestBid float64
    Version           int64
    EndTime           time.Time
}

// AuctionSummary is returned by listing endpoints.  It adds the winner's
// name, the top bids and the total bid count to the auction row.
type AuctionSummary struct {
    Auction
    WinnerName *string     `json:"winnerName,omitempty"`
    TopBids    []BidDetail `json:"bids"`
    BidCount   int64       `json:"bidCount"`
}
