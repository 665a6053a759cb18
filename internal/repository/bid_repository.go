package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/live-auction/internal/model"
)

// BidRepo reads committed bids.  Bids are only ever written by the
// resolver through BidTx.InsertBid.
type BidRepo struct{ DB *sql.DB }

func NewBidRepo(db *sql.DB) *BidRepo { return &BidRepo{DB: db} }

// ListByAuction returns every bid on an auction, highest first.
func (r *BidRepo) ListByAuction(ctx context.Context, auctionID uint64) ([]model.BidDetail, error) {
	return r.TopByAuction(ctx, auctionID, 0)
}

// TopByAuction returns the n highest bids on an auction joined with the
// bidder's name.  n <= 0 means no limit.
func (r *BidRepo) TopByAuction(ctx context.Context, auctionID uint64, n int) ([]model.BidDetail, error) {
	q := `SELECT b.id, b.auction_id, b.user_id, b.bid_amount, b.created_at, u.name
	      FROM bids b JOIN users u ON u.id = b.user_id
	      WHERE b.auction_id = ?
	      ORDER BY b.bid_amount DESC, b.id DESC`
	args := []any{auctionID}
	if n > 0 {
		q += " LIMIT ?"
		args = append(args, n)
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.BidDetail{}
	for rows.Next() {
		var d model.BidDetail
		if err := rows.Scan(&d.ID, &d.AuctionID, &d.UserID, &d.BidAmount, &d.CreatedAt, &d.UserName); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RecentByUser returns the user's n most recent bids.
func (r *BidRepo) RecentByUser(ctx context.Context, userID uint64, n int) ([]model.Bid, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, auction_id, user_id, bid_amount, created_at FROM bids
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Bid{}
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.UserID, &b.BidAmount, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
