package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/live-auction/internal/bidding"
	"github.com/iliyamo/live-auction/internal/middleware"
	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/service"
)

// AuctionService is what the auction endpoints need from the lifecycle
// service.
type AuctionService interface {
	Create(ctx context.Context, in service.CreateAuctionInput) (model.Auction, error)
	Get(ctx context.Context, id uint64) (model.AuctionSummary, error)
	List(ctx context.Context) ([]model.AuctionSummary, error)
	Bids(ctx context.Context, id uint64) ([]model.BidDetail, error)
	Activate(ctx context.Context, id uint64, src service.Source) (model.Auction, error)
	End(ctx context.Context, id uint64, src service.Source) (service.EndResult, error)
}

// BidSubmitter admits bids into the resolution pipeline.
type BidSubmitter interface {
	Submit(ctx context.Context, req bidding.BidRequest) (bidding.Ack, error)
}

// AuctionHandler bundles dependencies for auction endpoints.
type AuctionHandler struct {
	Auctions AuctionService
	Bids     BidSubmitter
}

func NewAuctionHandler(a AuctionService, b BidSubmitter) *AuctionHandler {
	if a == nil || b == nil {
		panic("nil dependency passed to NewAuctionHandler")
	}
	return &AuctionHandler{Auctions: a, Bids: b}
}

const requestTimeout = 5 * time.Second

type placeBidReq struct {
	BidAmount float64 `json:"bidAmount"`
}

// Create: POST /v1/auctions.
func (h *AuctionHandler) Create(c echo.Context) error {
	var req service.CreateAuctionInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	a, err := h.Auctions.Create(ctx, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

// List: GET /v1/auctions.  Not cacheable while any auction is open.
func (h *AuctionHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	out, err := h.Auctions.List(ctx)
	if err != nil {
		return writeError(c, err)
	}
	for _, a := range out {
		if a.Status == model.AuctionActive {
			middleware.NoStore(c)
			break
		}
	}
	return c.JSON(http.StatusOK, out)
}

// Get: GET /v1/auctions/:id, with the top bids and the bid count.  Not
// cacheable while the auction is open.
func (h *AuctionHandler) Get(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return invalidID(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sum, err := h.Auctions.Get(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	if sum.Status == model.AuctionActive {
		middleware.NoStore(c)
	}
	return c.JSON(http.StatusOK, sum)
}

// ListBids: GET /v1/auctions/:id/bids.
func (h *AuctionHandler) ListBids(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return invalidID(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	out, err := h.Auctions.Bids(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// PlaceBid: POST /v1/auctions/:id/bids.  The bidder is the token
// subject.  202 means queued, not accepted: the outcome arrives on the
// realtime channel.
func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return invalidID(c)
	}
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthenticated"})
	}
	var req placeBidReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	ack, err := h.Bids.Submit(ctx, bidding.BidRequest{AuctionID: id, UserID: uid, Amount: req.BidAmount})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, ack)
}

// Activate: PUT /v1/auctions/:id/activate.
func (h *AuctionHandler) Activate(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return invalidID(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	a, err := h.Auctions.Activate(ctx, id, service.SourceAPI)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// End: PUT /v1/auctions/:id/end.
func (h *AuctionHandler) End(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return invalidID(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Auctions.End(ctx, id, service.SourceAPI)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
