package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/live-auction/internal/logger"
	"github.com/iliyamo/live-auction/internal/metrics"
	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/queue"
)

// Sink is one destination of an event.
type Sink int

const (
	// Channel is the Redis pub/sub channel `auction:{id}`.
	Channel Sink = iota
	// Notifications is the durable notifications queue.
	Notifications
	// Audit is the durable audit queue.
	Audit
)

func (s Sink) String() string {
	switch s {
	case Channel:
		return "channel"
	case Notifications:
		return queue.NotificationsQueue
	case Audit:
		return queue.AuditQueue
	}
	return "unknown"
}

// QueuePublisher is the durable queue side of the fanout.
type QueuePublisher interface {
	Publish(ctx context.Context, queue string, v any) error
}

// Fanout publishes events to their sinks.  A failing sink is logged and
// counted; it does not stop the other sinks.
type Fanout struct {
	rdb     redis.UniversalClient
	queue   QueuePublisher
	metrics *metrics.Metrics
	log     *zerolog.Logger
	now     func() time.Time
}

func NewFanout(rdb redis.UniversalClient, q QueuePublisher, m *metrics.Metrics) *Fanout {
	if m == nil {
		m = metrics.NewMetrics("")
	}
	return &Fanout{
		rdb:     rdb,
		queue:   q,
		metrics: m,
		log:     logger.Component("fanout"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Publish delivers ev to each sink and returns the joined sink errors.
// Callers reporting a committed change ignore the error; it is already
// logged.
func (f *Fanout) Publish(ctx context.Context, ev Event, sinks ...Sink) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = f.now()
	}
	var errs []error
	for _, s := range sinks {
		err := f.publishTo(ctx, ev, s)
		result := "ok"
		if err != nil {
			result = "error"
			errs = append(errs, fmt.Errorf("%s: %w", s, err))
			f.log.Warn().Err(err).
				Str("type", string(ev.Type)).
				Uint64("auction_id", ev.AuctionID).
				Str("sink", s.String()).
				Msg("event sink failed")
		}
		f.metrics.EventsPublished.WithLabelValues(string(ev.Type), s.String(), result).Inc()
	}
	return errors.Join(errs...)
}

func (f *Fanout) publishTo(ctx context.Context, ev Event, s Sink) error {
	switch s {
	case Channel:
		if f.rdb == nil {
			return errors.New("redis not configured")
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		return f.rdb.Publish(ctx, ChannelFor(ev.AuctionID), payload).Err()
	case Notifications:
		if f.queue == nil {
			return errors.New("queue not configured")
		}
		return f.queue.Publish(ctx, queue.NotificationsQueue, ev)
	case Audit:
		if f.queue == nil {
			return errors.New("queue not configured")
		}
		return f.queue.Publish(ctx, queue.AuditQueue, auditRecord{Event: ev, Name: ev.Type})
	}
	return fmt.Errorf("unknown sink %d", int(s))
}

// BidPlaced announces a committed bid.
func (f *Fanout) BidPlaced(ctx context.Context, bid model.Bid) error {
	return f.Publish(ctx, Event{
		Type:      BidPlaced,
		AuctionID: bid.AuctionID,
		UserID:    bid.UserID,
		BidAmount: bid.BidAmount,
		Timestamp: bid.CreatedAt,
	}, Channel, Notifications, Audit)
}

// BidRejected records a bid that failed resolution and tells the bidder
// through the auction channel.
func (f *Fanout) BidRejected(ctx context.Context, work queue.BidWork, reason string) error {
	return f.Publish(ctx, Event{
		Type:      BidRejected,
		AuctionID: work.AuctionID,
		UserID:    work.UserID,
		BidAmount: work.BidAmount,
		Reason:    reason,
	}, Channel, Audit)
}

// AuctionEnded announces the close of an auction with its winner, if any.
func (f *Fanout) AuctionEnded(ctx context.Context, a model.Auction, winnerName string) error {
	ev := Event{Type: AuctionEnded, AuctionID: a.ID, WinnerID: a.WinnerID, ItemRef: a.ItemRef}
	if a.WinnerID != nil {
		bid := a.CurrentHighestBid
		ev.WinningBid = &bid
		ev.WinnerName = winnerName
	}
	return f.Publish(ctx, ev, Channel, Notifications)
}

// AuctionActivated announces that bidding opened.
func (f *Fanout) AuctionActivated(ctx context.Context, a model.Auction) error {
	return f.Publish(ctx, Event{
		Type:      AuctionActivated,
		AuctionID: a.ID,
		ItemRef:   a.ItemRef,
		StartTime: &a.StartTime,
		EndTime:   &a.EndTime,
	}, Channel, Notifications)
}

// AuctionCreated announces a new auction.
func (f *Fanout) AuctionCreated(ctx context.Context, a model.Auction) error {
	return f.Publish(ctx, Event{
		Type:      AuctionCreated,
		AuctionID: a.ID,
		ItemRef:   a.ItemRef,
		StartTime: &a.StartTime,
		EndTime:   &a.EndTime,
	}, Channel, Notifications)
}
