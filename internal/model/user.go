package model

import "time"

// User represents a bidder as stored in the `users` table.  The core
// only reads users: it checks existence before enqueueing a bid and
// records user ids as bidder and winner references.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – display name.
//  Email     – unique email address, used for login.
//  CreatedAt – timestamp of creation.
type User struct {
    ID        uint64    `json:"id"`        // users.id
    Name      string    `json:"name"`      // users.name
    Email     string    `json:"email"`     // users.email
    CreatedAt time.Time `json:"createdAt"` // users.created_at
}

// UserProfile is a user with their most recent bids and the auctions
// they currently lead or have won.
type UserProfile struct {
    User
    RecentBids  []Bid     `json:"bids"`
    WonAuctions []Auction `json:"wonAuctions"`
}

// UserListItem is a user with aggregate counters for listings.
type UserListItem struct {
    User
    BidCount int64 `json:"bidCount"`
    WonCount int64 `json:"wonCount"`
}
