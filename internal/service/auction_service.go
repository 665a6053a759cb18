// Package service holds the auction lifecycle: creation, activation,
// ending and the sweeper that applies both on schedule.  Bid state is
// never touched here; only the resolver writes highest bid, winner and
// version.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/live-auction/internal/bidding"
	"github.com/iliyamo/live-auction/internal/logger"
	"github.com/iliyamo/live-auction/internal/metrics"
	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/repository"
)

// AuctionStore is the persistence the lifecycle needs.
type AuctionStore interface {
	Create(ctx context.Context, a *model.Auction) error
	GetByID(ctx context.Context, id uint64) (model.Auction, error)
	Summary(ctx context.Context, id uint64, topN int) (model.AuctionSummary, error)
	List(ctx context.Context) ([]model.AuctionSummary, error)
	TransitionStatus(ctx context.Context, id uint64, from []model.AuctionStatus, to model.AuctionStatus) (model.Auction, error)
	ListDue(ctx context.Context, status model.AuctionStatus, now time.Time, limit int) ([]uint64, error)
}

// BidLister lists committed bids of an auction.
type BidLister interface {
	ListByAuction(ctx context.Context, auctionID uint64) ([]model.BidDetail, error)
}

// UserLookup resolves winner names.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// LifecycleEvents announces lifecycle changes.
type LifecycleEvents interface {
	AuctionCreated(ctx context.Context, a model.Auction) error
	AuctionActivated(ctx context.Context, a model.Auction) error
	AuctionEnded(ctx context.Context, a model.Auction, winnerName string) error
}

// ErrInvalidInput marks a malformed create request.
var ErrInvalidInput = errors.New("invalid input")

// Source labels who triggered a transition.
type Source string

const (
	SourceAPI      Source = "api"
	SourceRealtime Source = "realtime"
	SourceSweeper  Source = "sweeper"
)

// topBids is how many bids an auction detail carries.
const topBids = 3

// sweepBatch bounds one sweeper pass per status.
const sweepBatch = 100

type AuctionService struct {
	auctions AuctionStore
	bids     BidLister
	users    UserLookup
	events   LifecycleEvents
	metrics  *metrics.Metrics
	log      *zerolog.Logger
	now      func() time.Time
}

func NewAuctionService(auctions AuctionStore, bids BidLister, users UserLookup, ev LifecycleEvents, m *metrics.Metrics) *AuctionService {
	if m == nil {
		m = metrics.NewMetrics("")
	}
	return &AuctionService{
		auctions: auctions,
		bids:     bids,
		users:    users,
		events:   ev,
		metrics:  m,
		log:      logger.Component("lifecycle"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateAuctionInput is a new auction as requested by a seller.
type CreateAuctionInput struct {
	ItemRef     string              `json:"itemRef"`
	StartingBid float64             `json:"startingBid"`
	StartTime   time.Time           `json:"startTime"`
	EndTime     time.Time           `json:"endTime"`
	Status      model.AuctionStatus `json:"status"`
}

// Create validates and stores a new auction.  Status defaults to ACTIVE
// so bidding opens immediately; PENDING auctions are opened by the
// sweeper once StartTime passes.
func (s *AuctionService) Create(ctx context.Context, in CreateAuctionInput) (model.Auction, error) {
	in.ItemRef = strings.TrimSpace(in.ItemRef)
	if in.ItemRef == "" {
		return model.Auction{}, invalid("itemRef is required")
	}
	if in.StartingBid <= 0 {
		return model.Auction{}, invalid("startingBid must be positive")
	}
	if in.StartingBid > model.MaxBidAmount {
		return model.Auction{}, invalid("startingBid is too large")
	}
	if !in.StartTime.Before(in.EndTime) {
		return model.Auction{}, invalid("End time must be after start time")
	}
	if !in.StartTime.After(s.now()) {
		return model.Auction{}, invalid("Start time must be in the future")
	}
	switch in.Status {
	case "":
		in.Status = model.AuctionActive
	case model.AuctionActive, model.AuctionPending:
	default:
		return model.Auction{}, invalid("status must be PENDING or ACTIVE")
	}

	a := model.Auction{
		ItemRef:     in.ItemRef,
		StartingBid: in.StartingBid,
		StartTime:   in.StartTime.UTC(),
		EndTime:     in.EndTime.UTC(),
		Status:      in.Status,
	}
	if err := s.auctions.Create(ctx, &a); err != nil {
		return model.Auction{}, mapStoreErr("create auction", err)
	}
	s.log.Info().Uint64("auction_id", a.ID).Str("status", string(a.Status)).Msg("auction created")
	if s.events != nil {
		_ = s.events.AuctionCreated(ctx, a)
	}
	return a, nil
}

// Get returns an auction with its top bids and bid count.
func (s *AuctionService) Get(ctx context.Context, id uint64) (model.AuctionSummary, error) {
	sum, err := s.auctions.Summary(ctx, id, topBids)
	if err != nil {
		return model.AuctionSummary{}, mapStoreErr("load auction", err)
	}
	return sum, nil
}

// List returns all auctions with their leading bid.
func (s *AuctionService) List(ctx context.Context) ([]model.AuctionSummary, error) {
	out, err := s.auctions.List(ctx)
	if err != nil {
		return nil, mapStoreErr("list auctions", err)
	}
	return out, nil
}

// Bids returns every committed bid of an auction, highest first.
func (s *AuctionService) Bids(ctx context.Context, id uint64) ([]model.BidDetail, error) {
	if _, err := s.auctions.GetByID(ctx, id); err != nil {
		return nil, mapStoreErr("load auction", err)
	}
	out, err := s.bids.ListByAuction(ctx, id)
	if err != nil {
		return nil, mapStoreErr("list bids", err)
	}
	return out, nil
}

// Activate opens bidding on a PENDING auction.
func (s *AuctionService) Activate(ctx context.Context, id uint64, src Source) (model.Auction, error) {
	a, err := s.auctions.TransitionStatus(ctx, id, []model.AuctionStatus{model.AuctionPending}, model.AuctionActive)
	if errors.Is(err, repository.ErrConflict) {
		return model.Auction{}, &bidding.RejectionError{Kind: bidding.ErrInvalidState, Reason: "Auction already active or ended"}
	}
	if err != nil {
		return model.Auction{}, mapStoreErr("activate auction", err)
	}
	s.metrics.LifecycleTransitions.WithLabelValues(string(model.AuctionActive), string(src)).Inc()
	s.log.Info().Uint64("auction_id", id).Str("source", string(src)).Msg("auction activated")
	if s.events != nil {
		_ = s.events.AuctionActivated(ctx, a)
	}
	return a, nil
}

// EndResult is an ended auction with its winner, if any.
type EndResult struct {
	Auction    model.Auction `json:"auction"`
	WinnerName string        `json:"winnerName,omitempty"`
	WinningBid *float64      `json:"winningBid,omitempty"`
}

// End closes an auction.  The winner is whoever the resolver last
// recorded; bids still queued are rejected when they are resolved.
// Ending an ended auction fails with InvalidState and changes nothing.
func (s *AuctionService) End(ctx context.Context, id uint64, src Source) (EndResult, error) {
	a, err := s.auctions.TransitionStatus(ctx, id,
		[]model.AuctionStatus{model.AuctionPending, model.AuctionActive}, model.AuctionEnded)
	if errors.Is(err, repository.ErrConflict) {
		return EndResult{}, &bidding.RejectionError{Kind: bidding.ErrInvalidState, Reason: "Auction already ended"}
	}
	if err != nil {
		return EndResult{}, mapStoreErr("end auction", err)
	}

	res := EndResult{Auction: a}
	if a.WinnerID != nil {
		bid := a.CurrentHighestBid
		res.WinningBid = &bid
		if u, err := s.users.GetByID(ctx, *a.WinnerID); err == nil {
			res.WinnerName = u.Name
		} else {
			s.log.Warn().Err(err).Uint64("auction_id", id).Msg("winner lookup failed")
		}
	}
	s.metrics.LifecycleTransitions.WithLabelValues(string(model.AuctionEnded), string(src)).Inc()
	s.log.Info().Uint64("auction_id", id).Str("source", string(src)).Str("winner", res.WinnerName).Msg("auction ended")
	if s.events != nil {
		_ = s.events.AuctionEnded(ctx, a, res.WinnerName)
	}
	return res, nil
}

// Sweep activates PENDING auctions whose start time has passed and ends
// ACTIVE auctions past their end time.  A transition lost to a
// concurrent caller is skipped.
func (s *AuctionService) Sweep(ctx context.Context) (activated, ended int, err error) {
	now := s.now()
	due, err := s.auctions.ListDue(ctx, model.AuctionPending, now, sweepBatch)
	if err != nil {
		return 0, 0, mapStoreErr("list due auctions", err)
	}
	for _, id := range due {
		if _, err := s.Activate(ctx, id, SourceSweeper); err == nil {
			activated++
		} else if !bidding.IsPermanent(err) {
			return activated, ended, err
		}
	}

	due, err = s.auctions.ListDue(ctx, model.AuctionActive, now, sweepBatch)
	if err != nil {
		return activated, ended, mapStoreErr("list due auctions", err)
	}
	for _, id := range due {
		if _, err := s.End(ctx, id, SourceSweeper); err == nil {
			ended++
		} else if !bidding.IsPermanent(err) {
			return activated, ended, err
		}
	}
	return activated, ended, nil
}

// RunSweeper sweeps every interval until ctx is cancelled.
func (s *AuctionService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	s.log.Info().Dur("interval", interval).Msg("lifecycle sweeper started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a, e, err := s.Sweep(ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("lifecycle sweep failed")
				continue
			}
			if a > 0 || e > 0 {
				s.log.Info().Int("activated", a).Int("ended", e).Msg("lifecycle sweep")
			}
		}
	}
}

func mapStoreErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &bidding.RejectionError{Kind: bidding.ErrNotFound, Reason: "Auction not found"}
	}
	return fmt.Errorf("%w: %s: %v", bidding.ErrInfrastructureUnavailable, op, err)
}

func invalid(reason string) error {
	return &bidding.RejectionError{Kind: ErrInvalidInput, Reason: reason}
}
