package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/live-auction/internal/model"
)

// BidTx is one attempt at committing a bid.  The auction row is read
// without a lock; the write is fenced by the version read and by the
// auction still being open, so a concurrent commit or End between
// LoadBidState and CompareAndSetHighestBid makes the CAS report false
// instead of overwriting.
type BidTx interface {
	LoadBidState(ctx context.Context, auctionID uint64) (model.BidState, error)
	// CompareAndSetHighestBid sets the highest bid and winner and bumps
	// the version, only if the version still equals expectedVersion, the
	// auction is ACTIVE and its end time is not before now.
	CompareAndSetHighestBid(ctx context.Context, auctionID uint64, expectedVersion int64, amount float64, bidderID uint64, now time.Time) (bool, error)
	InsertBid(ctx context.Context, b *model.Bid) error
	Commit() error
	Rollback() error
}

// BeginBidTx starts a transaction for a single resolution attempt.
func (r *AuctionRepo) BeginBidTx(ctx context.Context) (BidTx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlBidTx{tx: tx}, nil
}

type sqlBidTx struct {
	tx *sql.Tx
}

func (t *sqlBidTx) LoadBidState(ctx context.Context, auctionID uint64) (model.BidState, error) {
	var (
		s      model.BidState
		status string
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, status, current_highest_bid, version, end_time FROM auctions WHERE id = ?`,
		auctionID).Scan(&s.AuctionID, &status, &s.CurrentHighestBid, &s.Version, &s.EndTime)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BidState{}, ErrNotFound
	}
	if err != nil {
		return model.BidState{}, err
	}
	s.Status = model.AuctionStatus(status)
	return s, nil
}

func (t *sqlBidTx) CompareAndSetHighestBid(ctx context.Context, auctionID uint64, expectedVersion int64, amount float64, bidderID uint64, now time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE auctions SET current_highest_bid = ?, winner_id = ?, version = version + 1
		 WHERE id = ? AND version = ? AND status = 'ACTIVE' AND end_time >= ?`,
		amount, bidderID, auctionID, expectedVersion, now)
	if err != nil {
		return false, classifyWrite(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *sqlBidTx) InsertBid(ctx context.Context, b *model.Bid) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO bids (auction_id, user_id, bid_amount, created_at) VALUES (?,?,?,?)`,
		b.AuctionID, b.UserID, b.BidAmount, b.CreatedAt)
	if err != nil {
		return classifyWrite(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

func (t *sqlBidTx) Commit() error   { return t.tx.Commit() }
func (t *sqlBidTx) Rollback() error { return t.tx.Rollback() }

// Server errors that are decided by the row values alone.
const (
	mysqlOutOfRange      = 1264
	mysqlIncorrectValue  = 1366
	mysqlDataTooLong     = 1406
	mysqlNoReferencedRow = 1452
)

func classifyWrite(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case mysqlOutOfRange, mysqlIncorrectValue, mysqlDataTooLong, mysqlNoReferencedRow:
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return err
}
