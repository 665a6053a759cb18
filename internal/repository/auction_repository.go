package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/live-auction/internal/model"
)

// AuctionRepo provides persistence for auctions.  Bid-related mutation
// of an auction (highest bid, winner, version) only happens through
// BeginBidTx; everything else here is lifecycle and reads.
type AuctionRepo struct {
	db *sql.DB
}

// NewAuctionRepo returns a new AuctionRepo bound to the given database.
func NewAuctionRepo(db *sql.DB) *AuctionRepo { return &AuctionRepo{db: db} }

// DB exposes the underlying handle.
func (r *AuctionRepo) DB() *sql.DB { return r.db }

const auctionColumns = `id, item_ref, starting_bid, current_highest_bid, start_time, end_time,
	   status, winner_id, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (model.Auction, error) {
	var (
		a      model.Auction
		status string
		winner sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.ItemRef, &a.StartingBid, &a.CurrentHighestBid, &a.StartTime, &a.EndTime,
		&status, &winner, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Auction{}, err
	}
	a.Status = model.AuctionStatus(status)
	if winner.Valid {
		w := uint64(winner.Int64)
		a.WinnerID = &w
	}
	return a, nil
}

// Create inserts an auction.  CurrentHighestBid starts at StartingBid and
// Version at 0; the generated ID and timestamps are written back to a.
func (r *AuctionRepo) Create(ctx context.Context, a *model.Auction) error {
	const q = `INSERT INTO auctions (item_ref, starting_bid, current_highest_bid, start_time, end_time, status, version)
			   VALUES (?, ?, ?, ?, ?, ?, 0)`
	res, err := r.db.ExecContext(ctx, q, a.ItemRef, a.StartingBid, a.StartingBid, a.StartTime.UTC(), a.EndTime.UTC(), string(a.Status))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*a = created
	return nil
}

// GetByID returns one auction or ErrNotFound.
func (r *AuctionRepo) GetByID(ctx context.Context, id uint64) (model.Auction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = ?`, id)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, ErrNotFound
	}
	return a, err
}

// List returns every auction, newest start time first, each with its
// winner's name, its single highest bid and its bid count.
func (r *AuctionRepo) List(ctx context.Context) ([]model.AuctionSummary, error) {
	const q = `SELECT a.id, a.item_ref, a.starting_bid, a.current_highest_bid, a.start_time, a.end_time,
					  a.status, a.winner_id, a.version, a.created_at, a.updated_at,
					  u.name, (SELECT COUNT(*) FROM bids b WHERE b.auction_id = a.id)
			   FROM auctions a
			   LEFT JOIN users u ON u.id = a.winner_id
			   ORDER BY a.start_time DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.AuctionSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	bids := NewBidRepo(r.db)
	for i := range out {
		top, err := bids.TopByAuction(ctx, out[i].ID, 1)
		if err != nil {
			return nil, err
		}
		out[i].TopBids = top
	}
	return out, nil
}

// Summary returns one auction with its winner's name, top n bids and bid
// count, or ErrNotFound.
func (r *AuctionRepo) Summary(ctx context.Context, id uint64, topN int) (model.AuctionSummary, error) {
	const q = `SELECT a.id, a.item_ref, a.starting_bid, a.current_highest_bid, a.start_time, a.end_time,
					  a.status, a.winner_id, a.version, a.created_at, a.updated_at,
					  u.name, (SELECT COUNT(*) FROM bids b WHERE b.auction_id = a.id)
			   FROM auctions a
			   LEFT JOIN users u ON u.id = a.winner_id
			   WHERE a.id = ?`
	s, err := scanSummary(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.AuctionSummary{}, ErrNotFound
	}
	if err != nil {
		return model.AuctionSummary{}, err
	}
	top, err := NewBidRepo(r.db).TopByAuction(ctx, id, topN)
	if err != nil {
		return model.AuctionSummary{}, err
	}
	s.TopBids = top
	return s, nil
}

func scanSummary(row rowScanner) (model.AuctionSummary, error) {
	var (
		s          model.AuctionSummary
		status     string
		winner     sql.NullInt64
		winnerName sql.NullString
	)
	err := row.Scan(&s.ID, &s.ItemRef, &s.StartingBid, &s.CurrentHighestBid, &s.StartTime, &s.EndTime,
		&status, &winner, &s.Version, &s.CreatedAt, &s.UpdatedAt, &winnerName, &s.BidCount)
	if err != nil {
		return model.AuctionSummary{}, err
	}
	s.Status = model.AuctionStatus(status)
	if winner.Valid {
		w := uint64(winner.Int64)
		s.WinnerID = &w
	}
	if winnerName.Valid {
		n := winnerName.String
		s.WinnerName = &n
	}
	s.TopBids = []model.BidDetail{}
	return s, nil
}

// TransitionStatus moves an auction to status `to` if its current status
// is one of `from`.  The guard runs inside the UPDATE, so two concurrent
// transitions cannot both succeed.  It returns ErrNotFound when the
// auction does not exist and ErrConflict when it is not in a source state.
func (r *AuctionRepo) TransitionStatus(ctx context.Context, id uint64, from []model.AuctionStatus, to model.AuctionStatus) (model.Auction, error) {
	if len(from) == 0 {
		return model.Auction{}, ErrConflict
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	q := `UPDATE auctions SET status = ? WHERE id = ? AND status IN (` + placeholders + `)`
	args := make([]any, 0, len(from)+2)
	args = append(args, string(to), id)
	for _, s := range from {
		args = append(args, string(s))
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return model.Auction{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Auction{}, err
	}
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return model.Auction{}, err
	}
	if n == 0 {
		return a, ErrConflict
	}
	return a, nil
}

// ListDue returns ids of auctions in `status` whose boundary has passed:
// start_time for PENDING auctions, end_time for ACTIVE ones.
func (r *AuctionRepo) ListDue(ctx context.Context, status model.AuctionStatus, now time.Time, limit int) ([]uint64, error) {
	var q string
	switch status {
	case model.AuctionPending:
		q = `SELECT id FROM auctions WHERE status = 'PENDING' AND start_time <= ? ORDER BY start_time LIMIT ?`
	case model.AuctionActive:
		q = `SELECT id FROM auctions WHERE status = 'ACTIVE' AND end_time < ? ORDER BY end_time LIMIT ?`
	default:
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
