package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/iliyamo/live-auction/internal/logger"
	"github.com/iliyamo/live-auction/internal/metrics"
)

// Client is one connection as seen by the hub.  Outbound frames go
// through a bounded buffer drained by the connection's writer.
type Client struct {
	ID     string
	UserID *uint64

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(id string, userID *uint64, buffer int) *Client {
	if buffer < 1 {
		buffer = 1
	}
	return &Client{ID: id, UserID: userID, send: make(chan []byte, buffer), done: make(chan struct{})}
}

// Send returns the outbound frames.
func (c *Client) Send() <-chan []byte { return c.send }

// Done is closed when the hub drops the client.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() { c.closeOnce.Do(func() { close(c.done) }) }

// Hub tracks rooms of clients keyed by auction.  Broadcasts never block:
// a client whose buffer is full is dropped.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[uint64]map[string]*Client
	joined  map[string]map[uint64]struct{}
	metrics *metrics.Metrics
	log     *zerolog.Logger
}

func NewHub(m *metrics.Metrics) *Hub {
	if m == nil {
		m = metrics.NewMetrics("")
	}
	return &Hub{
		rooms:   map[uint64]map[string]*Client{},
		joined:  map[string]map[uint64]struct{}{},
		metrics: m,
		log:     logger.Component("hub"),
	}
}

// Join adds c to the auction's room.
func (h *Hub) Join(auctionID uint64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[auctionID]
	if !ok {
		room = map[string]*Client{}
		h.rooms[auctionID] = room
	}
	room[c.ID] = c
	if h.joined[c.ID] == nil {
		h.joined[c.ID] = map[uint64]struct{}{}
	}
	h.joined[c.ID][auctionID] = struct{}{}
}

// Leave removes c from one room.
func (h *Hub) Leave(auctionID uint64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(auctionID, c.ID)
}

func (h *Hub) leaveLocked(auctionID uint64, id string) {
	if room, ok := h.rooms[auctionID]; ok {
		delete(room, id)
		if len(room) == 0 {
			delete(h.rooms, auctionID)
		}
	}
	if set, ok := h.joined[id]; ok {
		delete(set, auctionID)
		if len(set) == 0 {
			delete(h.joined, id)
		}
	}
}

// Remove takes c out of every room and closes it.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	for auctionID := range h.joined[c.ID] {
		h.leaveLocked(auctionID, c.ID)
	}
	h.mu.Unlock()
	c.close()
}

// RoomSize returns the number of clients in the auction's room.
func (h *Hub) RoomSize(auctionID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[auctionID])
}

// Broadcast queues msg for every client in the room and returns how many
// accepted it.
func (h *Hub) Broadcast(auctionID uint64, event string, msg []byte) int {
	return h.deliver(auctionID, event, msg, func(*Client) bool { return true })
}

// SendToUser queues msg only for the user's clients in the room.
func (h *Hub) SendToUser(auctionID, userID uint64, event string, msg []byte) int {
	return h.deliver(auctionID, event, msg, func(c *Client) bool {
		return c.UserID != nil && *c.UserID == userID
	})
}

func (h *Hub) deliver(auctionID uint64, event string, msg []byte, match func(*Client) bool) int {
	var sent int
	var slow []*Client

	h.mu.RLock()
	for _, c := range h.rooms[auctionID] {
		if !match(c) {
			continue
		}
		if c.enqueue(msg) {
			sent++
		} else {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn().Str("conn_id", c.ID).Uint64("auction_id", auctionID).Msg("dropping slow client")
		h.Remove(c)
	}
	if sent > 0 {
		h.metrics.FramesBroadcast.WithLabelValues(event).Add(float64(sent))
	}
	return sent
}
