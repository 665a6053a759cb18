package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"

	"github.com/iliyamo/live-auction/internal/bidding"
	"github.com/iliyamo/live-auction/internal/logger"
	"github.com/iliyamo/live-auction/internal/metrics"
	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/service"
	"github.com/iliyamo/live-auction/internal/utils"
)

// BidSubmitter admits bids into the pipeline.
type BidSubmitter interface {
	Submit(ctx context.Context, req bidding.BidRequest) (bidding.Ack, error)
}

// Auctions is the slice of the auction service the channel needs.
type Auctions interface {
	Get(ctx context.Context, id uint64) (model.AuctionSummary, error)
	End(ctx context.Context, id uint64, src service.Source) (service.EndResult, error)
}

// Admitter applies connection and action limits.
type Admitter interface {
	AdmitConnection(ctx context.Context, addr string) bool
	AdmitAction(ctx context.Context, addr string, userID *uint64) (bool, string)
}

const (
	defaultSendBuffer = 64
	actionTimeout     = 10 * time.Second
)

// Handler upgrades requests to the realtime channel and serves frames.
type Handler struct {
	Hub       *Hub
	Sessions  *Sessions
	Bids      BidSubmitter
	Auctions  Auctions
	Admission Admitter
	Secret    string

	// SendBuffer bounds queued outbound frames per connection.
	SendBuffer int

	metrics *metrics.Metrics
	log     *zerolog.Logger
}

func NewHandler(hub *Hub, bids BidSubmitter, auctions Auctions, admission Admitter, secret string, m *metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.NewMetrics("")
	}
	return &Handler{
		Hub:        hub,
		Sessions:   NewSessions(),
		Bids:       bids,
		Auctions:   auctions,
		Admission:  admission,
		Secret:     secret,
		SendBuffer: defaultSendBuffer,
		metrics:    m,
		log:        logger.Component("realtime"),
	}
}

// Serve is the echo handler for GET /v1/ws.  The bearer token may come
// from the `token` query parameter or the Authorization header; without
// one the connection is an anonymous watcher.
func (h *Handler) Serve(c echo.Context) error {
	token := bearerToken(c.Request())
	addr := c.RealIP()
	srv := websocket.Server{
		// Browsers and tools connect from arbitrary origins.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(ws *websocket.Conn) {
			h.serveConn(c.Request().Context(), ws, addr, token)
		},
	}
	srv.ServeHTTP(c.Response(), c.Request())
	return nil
}

func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	auth := r.Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func (h *Handler) serveConn(ctx context.Context, ws *websocket.Conn, addr, token string) {
	defer ws.Close()

	sess := Session{ID: uuid.NewString(), RemoteAddr: addr, ConnectedAt: time.Now().UTC()}
	if token != "" {
		id, err := utils.ParseAccessToken(h.Secret, token)
		if err != nil {
			_ = websocket.Message.Send(ws, string(errorFrame("Unauthorized")))
			return
		}
		uid := id.UserID
		sess.UserID = &uid
		sess.Email = id.Email
	}
	if !h.Admission.AdmitConnection(ctx, addr) {
		_ = websocket.Message.Send(ws, string(errorFrame("Too many connections from this IP")))
		return
	}

	log := h.log.With().Str("conn_id", sess.ID).Str("remote", addr).Logger()
	h.Sessions.Add(sess)
	defer h.Sessions.Remove(sess.ID)

	client := NewClient(sess.ID, sess.UserID, h.SendBuffer)
	defer h.Hub.Remove(client)

	h.metrics.ActiveConnections.Inc()
	defer h.metrics.ActiveConnections.Dec()
	log.Debug().Bool("authenticated", sess.Authenticated()).Msg("connected")

	go h.writeLoop(ws, client, &log)

	for {
		var f Frame
		err := websocket.JSON.Receive(ws, &f)
		if err != nil {
			var syntax *json.SyntaxError
			var typ *json.UnmarshalTypeError
			if errors.As(err, &syntax) || errors.As(err, &typ) {
				h.reply(client, errorFrame("Malformed frame"))
				continue
			}
			log.Debug().Err(err).Msg("disconnected")
			return
		}
		select {
		case <-client.Done():
			return
		default:
		}
		h.handle(ctx, sess, client, f)
	}
}

// writeLoop is the only writer on ws.  When the hub drops the client the
// socket is closed, which also ends the read loop.
func (h *Handler) writeLoop(ws *websocket.Conn, c *Client, log *zerolog.Logger) {
	for {
		select {
		case <-c.Done():
			_ = ws.Close()
			return
		case msg := <-c.Send():
			if err := websocket.Message.Send(ws, string(msg)); err != nil {
				log.Debug().Err(err).Msg("write failed")
				h.Hub.Remove(c)
				_ = ws.Close()
				return
			}
		}
	}
}

func (h *Handler) reply(c *Client, frame []byte) {
	if !c.enqueue(frame) {
		h.Hub.Remove(c)
	}
}

func (h *Handler) replyWith(c *Client, event string, data any) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		h.reply(c, errorFrame("Internal error"))
		return
	}
	h.reply(c, frame)
}

func (h *Handler) handle(parent context.Context, sess Session, c *Client, f Frame) {
	ctx, cancel := context.WithTimeout(parent, actionTimeout)
	defer cancel()

	switch f.Event {
	case EventJoinAuction:
		var in auctionRef
		if err := json.Unmarshal(f.Data, &in); err != nil || in.AuctionID == 0 {
			h.reply(c, errorFrame("auctionId is required"))
			return
		}
		if ok, msg := h.Admission.AdmitAction(ctx, sess.RemoteAddr, sess.UserID); !ok {
			h.reply(c, errorFrame(msg))
			return
		}
		summary, err := h.Auctions.Get(ctx, in.AuctionID)
		if err != nil {
			h.reply(c, errorFrame(bidding.Reason(err)))
			return
		}
		h.Hub.Join(in.AuctionID, c)
		h.replyWith(c, EventAuctionJoined, summary)

	case EventLeaveAuction:
		var in auctionRef
		if err := json.Unmarshal(f.Data, &in); err != nil || in.AuctionID == 0 {
			h.reply(c, errorFrame("auctionId is required"))
			return
		}
		h.Hub.Leave(in.AuctionID, c)
		h.replyWith(c, EventAuctionLeft, in)

	case EventPlaceBid:
		if !sess.Authenticated() {
			h.reply(c, errorFrame("Unauthenticated"))
			return
		}
		var in placeBidData
		if err := json.Unmarshal(f.Data, &in); err != nil {
			h.reply(c, errorFrame("Malformed bid"))
			return
		}
		if ok, msg := h.Admission.AdmitAction(ctx, sess.RemoteAddr, sess.UserID); !ok {
			h.reply(c, errorFrame(msg))
			return
		}
		ack, err := h.Bids.Submit(ctx, bidding.BidRequest{AuctionID: in.AuctionID, UserID: *sess.UserID, Amount: in.BidAmount})
		if err != nil {
			h.replyWith(c, EventError, ErrorData{Message: bidding.Reason(err), AuctionID: in.AuctionID, BidAmount: in.BidAmount})
			return
		}
		h.replyWith(c, EventBidAccepted, ack)

	case EventAuctionEnd:
		if !sess.Authenticated() {
			h.reply(c, errorFrame("Unauthenticated"))
			return
		}
		var in auctionRef
		if err := json.Unmarshal(f.Data, &in); err != nil || in.AuctionID == 0 {
			h.reply(c, errorFrame("auctionId is required"))
			return
		}
		res, err := h.Auctions.End(ctx, in.AuctionID, service.SourceRealtime)
		if err != nil {
			h.reply(c, errorFrame(bidding.Reason(err)))
			return
		}
		h.replyWith(c, EventAuctionEnded, res)

	default:
		h.reply(c, errorFrame("Unknown event: "+f.Event))
	}
}
