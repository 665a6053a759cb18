package bidding

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

// BidStore opens one transaction per resolution attempt.
type BidStore interface {
	BeginBidTx(ctx context.Context) (repository.BidTx, error)
}

// ResolutionEvents receives the outcome of a resolution.  Failures are
// logged by the implementation and never undo a commit.
type ResolutionEvents interface {
	BidPlaced(ctx context.Context, bid model.Bid) error
	BidRejected(ctx context.Context, work queue.BidWork, reason string) error
}

// State is the position of one work item in its resolution.
type State int

const (
	Received State = iota
	Validating
	RetryingCAS
	Committed
	PermanentlyRejected
)

func (s State) String() string {
	switch s {
	case Received:
		return "received"
	case Validating:
		return "validating"
	case RetryingCAS:
		return "retrying_cas"
	case Committed:
		return "committed"
	case PermanentlyRejected:
		return "permanently_rejected"
	}
	return "unknown"
}

// Resolution describes where a work item ended up.  Version is the
// auction version written by the commit and is zero otherwise.
type Resolution struct {
	State    State
	Attempts int
	Version  int64
	Bid      model.Bid
	Reason   string
}

// Resolver applies queued bids with an optimistic compare-and-set on the
// auction version.  No lock is held between reading the auction and
// writing it; a concurrent commit makes the write miss and the attempt
// is retried from a fresh read.
type Resolver struct {
	store      BidStore
	events     ResolutionEvents
	policy     RetryPolicy
	infraDelay time.Duration
	metrics    *metrics.Metrics
	log        *zerolog.Logger
	now        func() time.Time
}

// ResolverOptions tune a Resolver.
type ResolverOptions struct {
	Policy RetryPolicy
	// InfraRetryDelay is how long a delivery waits before being requeued
	// after a dependency failure.
	InfraRetryDelay time.Duration
}

func NewResolver(store BidStore, ev ResolutionEvents, opts ResolverOptions, m *metrics.Metrics) *Resolver {
	if m == nil {
		m = metrics.NewMetrics("")
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = DefaultRetryPolicy()
	}
	return &Resolver{
		store:      store,
		events:     ev,
		policy:     opts.Policy,
		infraDelay: opts.InfraRetryDelay,
		metrics:    m,
		log:        logger.Component("resolver"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Resolve runs the compare-and-set loop for one work item.  A nil error
// means the bid committed.  Permanent errors are RejectionErrors; any
// other error is an infrastructure failure and the item may be retried
// later.
func (r *Resolver) Resolve(ctx context.Context, w queue.BidWork) (Resolution, error) {
	start := time.Now()
	res := Resolution{State: Received}
	defer func() {
		r.metrics.ResolveAttempts.Observe(float64(res.Attempts))
		r.metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	}()

	limit := r.policy.attempts()
	for attempt := 1; attempt <= limit; attempt++ {
		res.Attempts = attempt
		res.State = Validating

		bid, version, committed, err := r.attempt(ctx, w)
		if err != nil {
			if IsPermanent(err) {
				res.State = PermanentlyRejected
				res.Reason = Reason(err)
			}
			return res, err
		}
		if committed {
			res.State = Committed
			res.Version = version
			res.Bid = bid
			if r.events != nil {
				_ = r.events.BidPlaced(ctx, bid)
			}
			return res, nil
		}

		// The CAS also misses when the auction closed after the read.
		// Only a version change is worth another attempt.
		if err := r.recheck(ctx, w); err != nil {
			if IsPermanent(err) {
				res.State = PermanentlyRejected
				res.Reason = Reason(err)
			}
			return res, err
		}

		res.State = RetryingCAS
		r.metrics.CASConflicts.Inc()
		logger.FromContext(ctx).Debug().
			Uint64("auction_id", w.AuctionID).
			Int("attempt", attempt).
			Msg("compare-and-set lost, retrying")
		if attempt < limit {
			if err := sleepCtx(ctx, r.policy.Delay(attempt)); err != nil {
				return res, unavailable("retry backoff", err)
			}
		}
	}

	err := reject(ErrConcurrencyConflict, "Bid could not be applied after %d attempts due to concurrent updates", limit)
	res.State = PermanentlyRejected
	res.Reason = Reason(err)
	return res, err
}

// attempt is one transaction: fresh read, pure re-validation, CAS, bid
// insert, commit.  committed=false with a nil error means the CAS lost.
func (r *Resolver) attempt(ctx context.Context, w queue.BidWork) (bid model.Bid, version int64, committed bool, err error) {
	tx, err := r.store.BeginBidTx(ctx)
	if err != nil {
		return model.Bid{}, 0, false, unavailable("begin tx", err)
	}
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	state, err := tx.LoadBidState(ctx, w.AuctionID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Bid{}, 0, false, reject(ErrNotFound, "Auction not found")
	}
	if err != nil {
		return model.Bid{}, 0, false, unavailable("load auction", err)
	}

	now := r.now()
	if err := CheckResolution(state, w, now); err != nil {
		return model.Bid{}, 0, false, err
	}

	ok, err := tx.CompareAndSetHighestBid(ctx, w.AuctionID, state.Version, w.BidAmount, w.UserID, now)
	if err != nil {
		return model.Bid{}, 0, false, writeFailure("compare-and-set", err)
	}
	if !ok {
		return model.Bid{}, 0, false, nil
	}

	bid = model.Bid{AuctionID: w.AuctionID, UserID: w.UserID, BidAmount: w.BidAmount, CreatedAt: now}
	if err := tx.InsertBid(ctx, &bid); err != nil {
		return model.Bid{}, 0, false, writeFailure("insert bid", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Bid{}, 0, false, unavailable("commit", err)
	}
	return bid, state.Version + 1, true, nil
}

// recheck reads the auction in a fresh transaction after a missed CAS
// and classifies the miss.  A nil error means the state still admits
// the bid and the miss was a lost race.
func (r *Resolver) recheck(ctx context.Context, w queue.BidWork) error {
	tx, err := r.store.BeginBidTx(ctx)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	state, err := tx.LoadBidState(ctx, w.AuctionID)
	if errors.Is(err, repository.ErrNotFound) {
		return reject(ErrNotFound, "Auction not found")
	}
	if err != nil {
		return unavailable("load auction", err)
	}
	return CheckResolution(state, w, r.now())
}

// writeFailure separates writes the server refuses for their values,
// which fail the same way on every redelivery, from dependency failures.
func writeFailure(op string, err error) error {
	if errors.Is(err, repository.ErrInvalidData) {
		return reject(ErrInvalidBid, "Bid could not be stored")
	}
	return unavailable(op, err)
}

// HandleDelivery resolves one bid-processing message and says how to
// settle it.  Permanent rejections are dead-lettered and announced to
// the bidder; infrastructure failures are requeued after a pause.
func (r *Resolver) HandleDelivery(ctx context.Context, body []byte) queue.Outcome {
	w, err := queue.DecodeBidWork(body)
	if err != nil {
		r.log.Warn().Err(err).Msg("dropping malformed bid work to dead letters")
		r.metrics.DeadLettered.WithLabelValues("malformed").Inc()
		return queue.DeadLetter
	}
	ctx = logger.WithAuctionID(ctx, w.AuctionID)
	log := logger.FromContext(ctx)

	res, err := r.Resolve(ctx, w)
	switch {
	case err == nil:
		r.metrics.BidsResolved.WithLabelValues(Committed.String()).Inc()
		log.Info().
			Uint64("user_id", w.UserID).
			Float64("bid_amount", w.BidAmount).
			Int64("version", res.Version).
			Int("attempts", res.Attempts).
			Msg("bid committed")
		return queue.Ack

	case IsPermanent(err):
		r.metrics.BidsResolved.WithLabelValues(PermanentlyRejected.String()).Inc()
		r.metrics.DeadLettered.WithLabelValues(Kind(err)).Inc()
		log.Info().
			Uint64("user_id", w.UserID).
			Float64("bid_amount", w.BidAmount).
			Str("reason", res.Reason).
			Int("attempts", res.Attempts).
			Msg("bid rejected")
		if r.events != nil {
			_ = r.events.BidRejected(ctx, w, res.Reason)
		}
		return queue.DeadLetter

	default:
		r.metrics.BidsResolved.WithLabelValues("requeued").Inc()
		log.Error().Err(err).Dur("retry_in", r.infraDelay).Msg("bid resolution failed, requeueing")
		_ = sleepCtx(ctx, r.infraDelay)
		return queue.Requeue
	}
}
