package bidding

//go:generate mockgen -source=ingress.go -destination=mock_ingress.go -package=bidding

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/live-auction/internal/logger"
	"github.com/iliyamo/live-auction/internal/metrics"
	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/queue"
	"github.com/iliyamo/live-auction/internal/repository"
)

// AuctionReader loads an auction snapshot.
type AuctionReader interface {
	GetByID(ctx context.Context, id uint64) (model.Auction, error)
}

// UserReader loads a bidder.
type UserReader interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// WorkPublisher enqueues bid work durably.
type WorkPublisher interface {
	Publish(ctx context.Context, queue string, v any) error
}

// AckStatus is the only status an admitted bid reports.
const AckStatus = "accepted_for_processing"

// Ack tells the client its bid was queued.  It is advisory: the bid may
// still be rejected at resolution.
type Ack struct {
	Status             string    `json:"status"`
	AuctionID          uint64    `json:"auctionId"`
	UserID             uint64    `json:"userId"`
	BidAmount          float64   `json:"bidAmount"`
	SnapshotHighestBid float64   `json:"currentHighestBid"`
	QueuedAt           time.Time `json:"queuedAt"`
}

// Ingress pre-validates bids against a possibly stale snapshot and
// enqueues the ones worth resolving.  It never writes to the database.
type Ingress struct {
	auctions  AuctionReader
	users     UserReader
	publisher WorkPublisher
	metrics   *metrics.Metrics
	log       *zerolog.Logger
	now       func() time.Time
}

func NewIngress(auctions AuctionReader, users UserReader, pub WorkPublisher, m *metrics.Metrics) *Ingress {
	if m == nil {
		m = metrics.NewMetrics("")
	}
	return &Ingress{
		auctions:  auctions,
		users:     users,
		publisher: pub,
		metrics:   m,
		log:       logger.Component("ingress"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit admits one bid.  On success exactly one BidWork has been
// enqueued; on any error nothing was.
func (in *Ingress) Submit(ctx context.Context, req BidRequest) (Ack, error) {
	ack, err := in.submit(ctx, req)
	result := "accepted"
	if err != nil {
		result = Kind(err)
		logger.FromContext(ctx).Debug().Err(err).
			Uint64("auction_id", req.AuctionID).
			Uint64("user_id", req.UserID).
			Msg("bid not admitted")
	}
	in.metrics.BidsAdmitted.WithLabelValues(result).Inc()
	return ack, err
}

func (in *Ingress) submit(ctx context.Context, req BidRequest) (Ack, error) {
	req, err := ParseBidRequest(req)
	if err != nil {
		return Ack{}, err
	}

	a, err := in.auctions.GetByID(ctx, req.AuctionID)
	if errors.Is(err, repository.ErrNotFound) {
		return Ack{}, reject(ErrNotFound, "Auction not found")
	}
	if err != nil {
		return Ack{}, unavailable("load auction", err)
	}

	if _, err := in.users.GetByID(ctx, req.UserID); errors.Is(err, repository.ErrNotFound) {
		return Ack{}, reject(ErrNotFound, "User not found")
	} else if err != nil {
		return Ack{}, unavailable("load user", err)
	}

	now := in.now()
	if err := CheckAdmission(a, req, now); err != nil {
		return Ack{}, err
	}

	work := queue.BidWork{AuctionID: req.AuctionID, UserID: req.UserID, BidAmount: req.Amount, Timestamp: now}
	if err := in.publisher.Publish(ctx, queue.BidProcessingQueue, work); err != nil {
		return Ack{}, unavailable("enqueue bid", err)
	}

	return Ack{
		Status:             AckStatus,
		AuctionID:          req.AuctionID,
		UserID:             req.UserID,
		BidAmount:          req.Amount,
		SnapshotHighestBid: a.CurrentHighestBid,
		QueuedAt:           now,
	}, nil
}
