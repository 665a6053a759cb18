package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/live-auction/internal/events"
	"github.com/iliyamo/live-auction/internal/logger"
)

// Broadcaster relays events from the auction channels into hub rooms.
// Each process runs one; it keeps no state of its own, so any number of
// processes can serve the same auctions.
type Broadcaster struct {
	rdb redis.UniversalClient
	hub *Hub
	log *zerolog.Logger
}

func NewBroadcaster(rdb redis.UniversalClient, hub *Hub) *Broadcaster {
	return &Broadcaster{rdb: rdb, hub: hub, log: logger.Component("broadcaster")}
}

// Run subscribes to every auction channel and dispatches until ctx is
// cancelled.  go-redis re-establishes the subscription after connection
// loss.
func (b *Broadcaster) Run(ctx context.Context) error {
	ps := b.rdb.PSubscribe(ctx, events.ChannelPattern)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		b.log.Warn().Err(err).Msg("initial psubscribe failed, will retry in background")
	}
	b.log.Info().Str("pattern", events.ChannelPattern).Msg("relaying auction events")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.Dispatch([]byte(msg.Payload))
		}
	}
}

// Dispatch routes one channel payload.  Room events are forwarded with
// the payload as the frame data; a rejection goes only to the bidder's
// connections as an error frame.  Unknown types are ignored.
func (b *Broadcaster) Dispatch(payload []byte) {
	ev, err := events.Decode(payload)
	if err != nil {
		b.log.Warn().Err(err).Msg("ignoring malformed auction event")
		return
	}

	var event string
	switch ev.Type {
	case events.BidPlaced:
		event = EventBidPlaced
	case events.AuctionEnded:
		event = EventAuctionEnded
	case events.AuctionActivated:
		event = EventAuctionActivated
	case events.BidRejected:
		frame, err := encodeFrame(EventError, ErrorData{Message: ev.Reason, AuctionID: ev.AuctionID, BidAmount: ev.BidAmount})
		if err != nil {
			return
		}
		b.hub.SendToUser(ev.AuctionID, ev.UserID, EventError, frame)
		return
	default:
		return
	}

	frame, err := json.Marshal(Frame{Event: event, Data: json.RawMessage(payload)})
	if err != nil {
		b.log.Warn().Err(err).Msg("encode frame")
		return
	}
	b.hub.Broadcast(ev.AuctionID, event, frame)
}
