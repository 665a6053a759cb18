package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/live-auction/internal/events"
)

func uid(v uint64) *uint64 { return &v }

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case m := <-c.Send():
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestHub_BroadcastReachesEachRoomMemberOnce(t *testing.T) {
	h := NewHub(nil)
	a := NewClient("a", nil, 8)
	b := NewClient("b", uid(7), 8)
	other := NewClient("c", nil, 8)
	h.Join(1, a)
	h.Join(1, b)
	h.Join(1, b)
	h.Join(2, other)

	n := h.Broadcast(1, EventBidPlaced, []byte(`x`))

	assert.Equal(t, 2, n)
	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
	assert.Empty(t, drain(other))
}

func TestHub_SendToUserOnlyMatchesBidder(t *testing.T) {
	h := NewHub(nil)
	anon := NewClient("anon", nil, 8)
	bidder := NewClient("bidder", uid(7), 8)
	bidderTab := NewClient("bidder-2", uid(7), 8)
	rival := NewClient("rival", uid(9), 8)
	for _, c := range []*Client{anon, bidder, bidderTab, rival} {
		h.Join(1, c)
	}

	n := h.SendToUser(1, 7, EventError, []byte(`x`))

	assert.Equal(t, 2, n)
	assert.Len(t, drain(bidder), 1)
	assert.Len(t, drain(bidderTab), 1)
	assert.Empty(t, drain(anon))
	assert.Empty(t, drain(rival))
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := NewHub(nil)
	slow := NewClient("slow", nil, 1)
	fast := NewClient("fast", nil, 8)
	h.Join(1, slow)
	h.Join(1, fast)

	h.Broadcast(1, EventBidPlaced, []byte(`1`))
	h.Broadcast(1, EventBidPlaced, []byte(`2`))

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow client was not dropped")
	}
	assert.Equal(t, 1, h.RoomSize(1))
	assert.Len(t, drain(fast), 2)
}

func TestHub_RemoveLeavesEveryRoom(t *testing.T) {
	h := NewHub(nil)
	c := NewClient("c", nil, 8)
	h.Join(1, c)
	h.Join(2, c)
	h.Leave(2, c)
	h.Join(3, c)

	h.Remove(c)

	assert.Zero(t, h.RoomSize(1))
	assert.Zero(t, h.RoomSize(2))
	assert.Zero(t, h.RoomSize(3))
	assert.Zero(t, h.Broadcast(1, EventBidPlaced, []byte(`x`)))
}

func TestBroadcaster_Dispatch(t *testing.T) {
	h := NewHub(nil)
	bidder := NewClient("bidder", uid(7), 8)
	watcher := NewClient("watcher", nil, 8)
	h.Join(1, bidder)
	h.Join(1, watcher)
	b := NewBroadcaster(nil, h)

	tests := []struct {
		name        string
		payload     string
		wantBidder  string
		wantWatcher string
	}{
		{"bid placed", `{"type":"BID_PLACED","auctionId":1,"userId":9,"bidAmount":120}`, EventBidPlaced, EventBidPlaced},
		{"auction ended", `{"type":"AUCTION_ENDED","auctionId":1,"winnerName":"bob"}`, EventAuctionEnded, EventAuctionEnded},
		{"auction activated", `{"type":"AUCTION_ACTIVATED","auctionId":1}`, EventAuctionActivated, EventAuctionActivated},
		{"rejection goes to bidder only", `{"type":"BID_REJECTED","auctionId":1,"userId":7,"bidAmount":90,"reason":"Auction has ended"}`, EventError, ""},
		{"other room", `{"type":"BID_PLACED","auctionId":2,"userId":9,"bidAmount":120}`, "", ""},
		{"created is not relayed", `{"type":"AUCTION_CREATED","auctionId":1}`, "", ""},
		{"malformed", `{not json`, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b.Dispatch([]byte(tt.payload))
			assert.Equal(t, tt.wantBidder, onlyEvent(t, drain(bidder)))
			assert.Equal(t, tt.wantWatcher, onlyEvent(t, drain(watcher)))
		})
	}
}

func TestBroadcaster_DispatchKeepsPayload(t *testing.T) {
	h := NewHub(nil)
	c := NewClient("c", nil, 8)
	h.Join(1, c)
	b := NewBroadcaster(nil, h)

	b.Dispatch([]byte(`{"type":"BID_PLACED","auctionId":1,"userId":9,"bidAmount":120.5}`))

	msgs := drain(c)
	require.Len(t, msgs, 1)
	var f Frame
	require.NoError(t, json.Unmarshal(msgs[0], &f))
	ev, err := events.Decode(f.Data)
	require.NoError(t, err)
	assert.Equal(t, 120.5, ev.BidAmount)
	assert.Equal(t, uint64(9), ev.UserID)
}

func TestBroadcaster_RejectionFrameCarriesReason(t *testing.T) {
	h := NewHub(nil)
	c := NewClient("c", uid(7), 8)
	h.Join(1, c)
	b := NewBroadcaster(nil, h)

	b.Dispatch([]byte(`{"type":"BID_REJECTED","auctionId":1,"userId":7,"bidAmount":90,"reason":"Bid must be higher than current highest bid"}`))

	msgs := drain(c)
	require.Len(t, msgs, 1)
	var f Frame
	require.NoError(t, json.Unmarshal(msgs[0], &f))
	var data ErrorData
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, "Bid must be higher than current highest bid", data.Message)
	assert.Equal(t, 90.0, data.BidAmount)
}

func onlyEvent(t *testing.T, msgs [][]byte) string {
	t.Helper()
	if len(msgs) == 0 {
		return ""
	}
	require.Len(t, msgs, 1)
	var f Frame
	require.NoError(t, json.Unmarshal(msgs[0], &f))
	return f.Event
}
