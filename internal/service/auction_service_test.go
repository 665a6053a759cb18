package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/live-auction/internal/bidding"
	"github.com/iliyamo/live-auction/internal/metrics"
	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/repository"
)

type memAuctions struct {
	mu     sync.Mutex
	rows   map[uint64]model.Auction
	nextID uint64
	err    error
}

func newMemAuctions(rows ...model.Auction) *memAuctions {
	m := &memAuctions{rows: map[uint64]model.Auction{}}
	for _, a := range rows {
		m.rows[a.ID] = a
		if a.ID > m.nextID {
			m.nextID = a.ID
		}
	}
	return m
}

func (m *memAuctions) Create(_ context.Context, a *model.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.nextID++
	a.ID = m.nextID
	a.CurrentHighestBid = a.StartingBid
	m.rows[a.ID] = *a
	return nil
}

func (m *memAuctions) GetByID(_ context.Context, id uint64) (model.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return model.Auction{}, repository.ErrNotFound
	}
	return a, nil
}

func (m *memAuctions) Summary(ctx context.Context, id uint64, _ int) (model.AuctionSummary, error) {
	a, err := m.GetByID(ctx, id)
	return model.AuctionSummary{Auction: a}, err
}

func (m *memAuctions) List(context.Context) ([]model.AuctionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AuctionSummary
	for _, a := range m.rows {
		out = append(out, model.AuctionSummary{Auction: a})
	}
	return out, nil
}

func (m *memAuctions) TransitionStatus(_ context.Context, id uint64, from []model.AuctionStatus, to model.AuctionStatus) (model.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return model.Auction{}, repository.ErrNotFound
	}
	for _, f := range from {
		if a.Status == f {
			a.Status = to
			m.rows[id] = a
			return a, nil
		}
	}
	return a, repository.ErrConflict
}

func (m *memAuctions) ListDue(_ context.Context, status model.AuctionStatus, now time.Time, _ int) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uint64
	for id, a := range m.rows {
		if a.Status != status {
			continue
		}
		if status == model.AuctionPending && !a.StartTime.After(now) {
			ids = append(ids, id)
		}
		if status == model.AuctionActive && now.After(a.EndTime) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type noBids struct{}

func (noBids) ListByAuction(context.Context, uint64) ([]model.BidDetail, error) {
	return []model.BidDetail{}, nil
}

type users map[uint64]string

func (u users) GetByID(_ context.Context, id uint64) (model.User, error) {
	name, ok := u[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return model.User{ID: id, Name: name}, nil
}

type lifecycleRecorder struct {
	mu      sync.Mutex
	created []uint64
	active  []uint64
	ended   map[uint64]string
}

func (r *lifecycleRecorder) AuctionCreated(_ context.Context, a model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, a.ID)
	return nil
}

func (r *lifecycleRecorder) AuctionActivated(_ context.Context, a model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = append(r.active, a.ID)
	return nil
}

func (r *lifecycleRecorder) AuctionEnded(_ context.Context, a model.Auction, winner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended == nil {
		r.ended = map[uint64]string{}
	}
	r.ended[a.ID] = winner
	return nil
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newService(store *memAuctions) (*AuctionService, *lifecycleRecorder, *metrics.Metrics) {
	rec := &lifecycleRecorder{}
	m := metrics.NewMetrics("test")
	s := NewAuctionService(store, noBids{}, users{9: "Bob"}, rec, m)
	s.now = func() time.Time { return testNow }
	return s, rec, m
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name    string
		in      CreateAuctionInput
		wantErr error
		status  model.AuctionStatus
	}{
		{
			name:   "defaults_to_active",
			in:     CreateAuctionInput{ItemRef: "car-1", StartingBid: 1000, StartTime: testNow.Add(time.Minute), EndTime: testNow.Add(time.Hour)},
			status: model.AuctionActive,
		},
		{
			name:   "explicit_pending",
			in:     CreateAuctionInput{ItemRef: "car-1", StartingBid: 1000, StartTime: testNow.Add(time.Minute), EndTime: testNow.Add(time.Hour), Status: model.AuctionPending},
			status: model.AuctionPending,
		},
		{
			name:    "end_before_start",
			in:      CreateAuctionInput{ItemRef: "car-1", StartingBid: 1000, StartTime: testNow.Add(time.Hour), EndTime: testNow.Add(time.Minute)},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "start_in_past",
			in:      CreateAuctionInput{ItemRef: "car-1", StartingBid: 1000, StartTime: testNow.Add(-time.Minute), EndTime: testNow.Add(time.Hour)},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "missing_item",
			in:      CreateAuctionInput{StartingBid: 1000, StartTime: testNow.Add(time.Minute), EndTime: testNow.Add(time.Hour)},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "starting_bid_beyond_column_range",
			in:      CreateAuctionInput{ItemRef: "car-1", StartingBid: 1e13, StartTime: testNow.Add(time.Minute), EndTime: testNow.Add(time.Hour)},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "created_as_ended",
			in:      CreateAuctionInput{ItemRef: "x", StartingBid: 1, StartTime: testNow.Add(time.Minute), EndTime: testNow.Add(time.Hour), Status: model.AuctionEnded},
			wantErr: ErrInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, rec, _ := newService(newMemAuctions())
			a, err := s.Create(context.Background(), tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, rec.created)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, a.Status)
			assert.Equal(t, tt.in.StartingBid, a.CurrentHighestBid)
			assert.Equal(t, []uint64{a.ID}, rec.created)
		})
	}
}

func TestCreate_StoreDown(t *testing.T) {
	store := newMemAuctions()
	store.err = errors.New("connection refused")
	s, _, _ := newService(store)
	_, err := s.Create(context.Background(), CreateAuctionInput{ItemRef: "x", StartingBid: 1, StartTime: testNow.Add(time.Minute), EndTime: testNow.Add(time.Hour)})
	require.ErrorIs(t, err, bidding.ErrInfrastructureUnavailable)
}

func TestActivate(t *testing.T) {
	store := newMemAuctions(
		model.Auction{ID: 1, Status: model.AuctionPending},
		model.Auction{ID: 2, Status: model.AuctionEnded},
	)
	s, rec, m := newService(store)

	a, err := s.Activate(context.Background(), 1, SourceAPI)
	require.NoError(t, err)
	assert.Equal(t, model.AuctionActive, a.Status)
	assert.Equal(t, []uint64{1}, rec.active)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LifecycleTransitions.WithLabelValues("ACTIVE", "api")))

	_, err = s.Activate(context.Background(), 1, SourceAPI)
	require.ErrorIs(t, err, bidding.ErrInvalidState)

	_, err = s.Activate(context.Background(), 2, SourceAPI)
	require.ErrorIs(t, err, bidding.ErrInvalidState)

	_, err = s.Activate(context.Background(), 99, SourceAPI)
	require.ErrorIs(t, err, bidding.ErrNotFound)
}

func TestEnd(t *testing.T) {
	winner := uint64(9)
	store := newMemAuctions(
		model.Auction{ID: 1, Status: model.AuctionActive, CurrentHighestBid: 1200, WinnerID: &winner, Version: 2},
		model.Auction{ID: 2, Status: model.AuctionActive, CurrentHighestBid: 500},
	)
	s, rec, _ := newService(store)

	res, err := s.End(context.Background(), 1, SourceRealtime)
	require.NoError(t, err)
	assert.Equal(t, model.AuctionEnded, res.Auction.Status)
	assert.Equal(t, "Bob", res.WinnerName)
	require.NotNil(t, res.WinningBid)
	assert.Equal(t, 1200.0, *res.WinningBid)
	assert.Equal(t, "Bob", rec.ended[1])

	// ending twice is rejected and leaves the row unchanged
	before, _ := store.GetByID(context.Background(), 1)
	_, err = s.End(context.Background(), 1, SourceAPI)
	require.ErrorIs(t, err, bidding.ErrInvalidState)
	after, _ := store.GetByID(context.Background(), 1)
	assert.Equal(t, before, after)

	res, err = s.End(context.Background(), 2, SourceAPI)
	require.NoError(t, err)
	assert.Nil(t, res.WinningBid)
	assert.Empty(t, res.WinnerName)
}

func TestSweep(t *testing.T) {
	store := newMemAuctions(
		model.Auction{ID: 1, Status: model.AuctionPending, StartTime: testNow.Add(-time.Second), EndTime: testNow.Add(time.Hour)},
		model.Auction{ID: 2, Status: model.AuctionPending, StartTime: testNow.Add(time.Minute), EndTime: testNow.Add(time.Hour)},
		model.Auction{ID: 3, Status: model.AuctionActive, StartTime: testNow.Add(-time.Hour), EndTime: testNow.Add(-time.Second)},
		model.Auction{ID: 4, Status: model.AuctionActive, StartTime: testNow.Add(-time.Hour), EndTime: testNow.Add(time.Hour)},
	)
	s, _, m := newService(store)

	activated, ended, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, activated)
	assert.Equal(t, 1, ended)

	a1, _ := store.GetByID(context.Background(), 1)
	a2, _ := store.GetByID(context.Background(), 2)
	a3, _ := store.GetByID(context.Background(), 3)
	a4, _ := store.GetByID(context.Background(), 4)
	assert.Equal(t, model.AuctionActive, a1.Status)
	assert.Equal(t, model.AuctionPending, a2.Status)
	assert.Equal(t, model.AuctionEnded, a3.Status)
	assert.Equal(t, model.AuctionActive, a4.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LifecycleTransitions.WithLabelValues("ENDED", "sweeper")))
}

func TestBids_UnknownAuction(t *testing.T) {
	s, _, _ := newService(newMemAuctions())
	_, err := s.Bids(context.Background(), 5)
	require.ErrorIs(t, err, bidding.ErrNotFound)
}
