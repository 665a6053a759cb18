package bidding

import (
	"math"
	"time"

	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/queue"
)

// BidRequest is a bid as submitted by a client.
type BidRequest struct {
	AuctionID uint64  `json:"auctionId"`
	UserID    uint64  `json:"userId"`
	Amount    float64 `json:"bidAmount"`
}

// ParseBidRequest checks the shape of a request without touching any
// store.  Amounts are limited to whole cents and to MaxBidAmount to
// match the stored column.
func ParseBidRequest(req BidRequest) (BidRequest, error) {
	if req.AuctionID == 0 {
		return BidRequest{}, reject(ErrInvalidBid, "auctionId is required")
	}
	if req.UserID == 0 {
		return BidRequest{}, reject(ErrInvalidBid, "userId is required")
	}
	a := req.Amount
	if math.IsNaN(a) || math.IsInf(a, 0) || a <= 0 {
		return BidRequest{}, reject(ErrInvalidBid, "Bid amount must be a positive number")
	}
	if a > model.MaxBidAmount {
		return BidRequest{}, reject(ErrInvalidBid, "Bid amount is too large")
	}
	if cents := a * 100; math.Abs(cents-math.Round(cents)) > 1e-6 {
		return BidRequest{}, reject(ErrInvalidBid, "Bid amount must have at most two decimal places")
	}
	return req, nil
}

// CheckAdmission validates a request against an auction snapshot.  The
// snapshot may be stale; passing here only means the bid is worth
// queuing.
func CheckAdmission(a model.Auction, req BidRequest, now time.Time) error {
	if err := checkOpen(a.Status, a.EndTime, now); err != nil {
		return err
	}
	return checkAmount(req.Amount, a.CurrentHighestBid)
}

// CheckResolution re-validates queued work against the state read inside
// the resolving transaction.
func CheckResolution(s model.BidState, w queue.BidWork, now time.Time) error {
	if err := checkOpen(s.Status, s.EndTime, now); err != nil {
		return err
	}
	return checkAmount(w.BidAmount, s.CurrentHighestBid)
}

func checkOpen(status model.AuctionStatus, end time.Time, now time.Time) error {
	if status != model.AuctionActive {
		return reject(ErrInvalidState, "Auction is not active")
	}
	if now.After(end) {
		return reject(ErrInvalidState, "Auction has ended")
	}
	return nil
}

func checkAmount(amount, highest float64) error {
	if amount <= highest {
		return reject(ErrInvalidBid, "Bid must be higher than current highest bid")
	}
	return nil
}
