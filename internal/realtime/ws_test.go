package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/iliyamo/live-auction/internal/bidding"
	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/service"
	"github.com/iliyamo/live-auction/internal/utils"
)

const testSecret = "test-secret"

type fakeBids struct {
	mu   sync.Mutex
	reqs []bidding.BidRequest
	err  error
}

func (f *fakeBids) Submit(_ context.Context, req bidding.BidRequest) (bidding.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return bidding.Ack{}, f.err
	}
	return bidding.Ack{Status: bidding.AckStatus, AuctionID: req.AuctionID, BidAmount: req.Amount}, nil
}

type fakeAuctions struct{}

func (fakeAuctions) Get(_ context.Context, id uint64) (model.AuctionSummary, error) {
	if id == 404 {
		return model.AuctionSummary{}, &bidding.RejectionError{Kind: bidding.ErrNotFound, Reason: "Auction not found"}
	}
	return model.AuctionSummary{Auction: model.Auction{ID: id, Status: model.AuctionActive}}, nil
}

func (fakeAuctions) End(_ context.Context, id uint64, _ service.Source) (service.EndResult, error) {
	return service.EndResult{Auction: model.Auction{ID: id, Status: model.AuctionEnded}}, nil
}

type fakeAdmission struct{ connOK bool }

func (f fakeAdmission) AdmitConnection(context.Context, string) bool { return f.connOK }
func (f fakeAdmission) AdmitAction(context.Context, string, *uint64) (bool, string) {
	return true, ""
}

func newTestServer(t *testing.T, h *Handler) string {
	t.Helper()
	e := echo.New()
	e.GET("/v1/ws", h.Serve)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return "ws://" + strings.TrimPrefix(srv.URL, "http://") + "/v1/ws"
}

func dial(t *testing.T, url string, userID uint64) *websocket.Conn {
	t.Helper()
	if userID != 0 {
		tok, err := utils.NewAccessToken(testSecret, utils.Identity{UserID: userID, Email: "u@example.com"}, 5)
		require.NoError(t, err)
		url += "?token=" + tok.Token
	}
	ws, err := websocket.Dial(url, "", "http://localhost/")
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, websocket.JSON.Send(ws, Frame{Event: event, Data: raw}))
}

func receive(t *testing.T, ws *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, websocket.JSON.Receive(ws, &f))
	return f
}

func errorMessage(t *testing.T, f Frame) string {
	t.Helper()
	require.Equal(t, EventError, f.Event)
	var d ErrorData
	require.NoError(t, json.Unmarshal(f.Data, &d))
	return d.Message
}

func TestWS_AnonymousWatcherCannotBid(t *testing.T) {
	bids := &fakeBids{}
	h := NewHandler(NewHub(nil), bids, fakeAuctions{}, fakeAdmission{connOK: true}, testSecret, nil)
	ws := dial(t, newTestServer(t, h), 0)

	send(t, ws, EventJoinAuction, auctionRef{AuctionID: 1})
	assert.Equal(t, EventAuctionJoined, receive(t, ws).Event)

	send(t, ws, EventPlaceBid, placeBidData{AuctionID: 1, BidAmount: 150})
	assert.Equal(t, "Unauthenticated", errorMessage(t, receive(t, ws)))

	send(t, ws, EventAuctionEnd, auctionRef{AuctionID: 1})
	assert.Equal(t, "Unauthenticated", errorMessage(t, receive(t, ws)))
	assert.Empty(t, bids.reqs)
}

func TestWS_PlaceBidUsesTokenIdentity(t *testing.T) {
	bids := &fakeBids{}
	h := NewHandler(NewHub(nil), bids, fakeAuctions{}, fakeAdmission{connOK: true}, testSecret, nil)
	ws := dial(t, newTestServer(t, h), 7)

	send(t, ws, EventPlaceBid, placeBidData{AuctionID: 1, BidAmount: 150})
	f := receive(t, ws)

	require.Equal(t, EventBidAccepted, f.Event)
	var ack bidding.Ack
	require.NoError(t, json.Unmarshal(f.Data, &ack))
	assert.Equal(t, bidding.AckStatus, ack.Status)
	bids.mu.Lock()
	defer bids.mu.Unlock()
	require.Len(t, bids.reqs, 1)
	assert.Equal(t, uint64(7), bids.reqs[0].UserID)
	assert.Equal(t, 150.0, bids.reqs[0].Amount)
}

func TestWS_AdmissionRejectionIsErrorFrame(t *testing.T) {
	bids := &fakeBids{err: &bidding.RejectionError{Kind: bidding.ErrInvalidBid, Reason: "Bid must be higher than current highest bid"}}
	h := NewHandler(NewHub(nil), bids, fakeAuctions{}, fakeAdmission{connOK: true}, testSecret, nil)
	ws := dial(t, newTestServer(t, h), 7)

	send(t, ws, EventPlaceBid, placeBidData{AuctionID: 1, BidAmount: 50})

	assert.Equal(t, "Bid must be higher than current highest bid", errorMessage(t, receive(t, ws)))
}

func TestWS_JoinUnknownAuction(t *testing.T) {
	hub := NewHub(nil)
	h := NewHandler(hub, &fakeBids{}, fakeAuctions{}, fakeAdmission{connOK: true}, testSecret, nil)
	ws := dial(t, newTestServer(t, h), 0)

	send(t, ws, EventJoinAuction, auctionRef{AuctionID: 404})

	assert.Equal(t, "Auction not found", errorMessage(t, receive(t, ws)))
	assert.Zero(t, hub.RoomSize(404))
}

func TestWS_UnknownEventAndMalformedFrame(t *testing.T) {
	h := NewHandler(NewHub(nil), &fakeBids{}, fakeAuctions{}, fakeAdmission{connOK: true}, testSecret, nil)
	ws := dial(t, newTestServer(t, h), 0)

	send(t, ws, "dance", nil)
	assert.Equal(t, "Unknown event: dance", errorMessage(t, receive(t, ws)))

	require.NoError(t, websocket.Message.Send(ws, `{"event":`))
	assert.Equal(t, "Malformed frame", errorMessage(t, receive(t, ws)))

	send(t, ws, EventJoinAuction, auctionRef{AuctionID: 1})
	assert.Equal(t, EventAuctionJoined, receive(t, ws).Event)
}

func TestWS_InvalidTokenIsClosed(t *testing.T) {
	h := NewHandler(NewHub(nil), &fakeBids{}, fakeAuctions{}, fakeAdmission{connOK: true}, testSecret, nil)
	ws, err := websocket.Dial(newTestServer(t, h)+"?token=garbage", "", "http://localhost/")
	require.NoError(t, err)
	defer ws.Close()

	assert.Equal(t, "Unauthorized", errorMessage(t, receive(t, ws)))
	var f Frame
	assert.Error(t, websocket.JSON.Receive(ws, &f))
}

func TestWS_ConnectionCapRejects(t *testing.T) {
	h := NewHandler(NewHub(nil), &fakeBids{}, fakeAuctions{}, fakeAdmission{connOK: false}, testSecret, nil)
	ws := dial(t, newTestServer(t, h), 0)

	assert.Equal(t, "Too many connections from this IP", errorMessage(t, receive(t, ws)))
	assert.Zero(t, h.Sessions.Count())
}

func TestWS_RelaysChannelEventsToRoom(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = NewBroadcaster(rdb, hub).Run(ctx) }()
	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 1 }, 2*time.Second, 10*time.Millisecond)

	h := NewHandler(hub, &fakeBids{}, fakeAuctions{}, fakeAdmission{connOK: true}, testSecret, nil)
	url := newTestServer(t, h)

	bidder := dial(t, url, 7)
	watcher := dial(t, url, 0)
	elsewhere := dial(t, url, 0)
	send(t, bidder, EventJoinAuction, auctionRef{AuctionID: 1})
	send(t, watcher, EventJoinAuction, auctionRef{AuctionID: 1})
	send(t, elsewhere, EventJoinAuction, auctionRef{AuctionID: 2})
	for _, ws := range []*websocket.Conn{bidder, watcher, elsewhere} {
		require.Equal(t, EventAuctionJoined, receive(t, ws).Event)
	}

	require.NoError(t, rdb.Publish(ctx, "auction:1", `{"type":"BID_REJECTED","auctionId":1,"userId":7,"bidAmount":90,"reason":"Auction has ended"}`).Err())
	require.NoError(t, rdb.Publish(ctx, "auction:1", `{"type":"BID_PLACED","auctionId":1,"userId":9,"bidAmount":120}`).Err())

	assert.Equal(t, "Auction has ended", errorMessage(t, receive(t, bidder)))
	assert.Equal(t, EventBidPlaced, receive(t, bidder).Event)
	assert.Equal(t, EventBidPlaced, receive(t, watcher).Event)

	require.NoError(t, elsewhere.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var f Frame
	assert.Error(t, websocket.JSON.Receive(elsewhere, &f))
}
