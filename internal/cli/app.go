package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/live-auction/internal/config"
	"github.com/iliyamo/live-auction/internal/database"
	"github.com/iliyamo/live-auction/internal/events"
	"github.com/iliyamo/live-auction/internal/logger"
	"github.com/iliyamo/live-auction/internal/metrics"
	"github.com/iliyamo/live-auction/internal/queue"
	"github.com/iliyamo/live-auction/internal/repository"
	"github.com/iliyamo/live-auction/internal/service"
)

// app is the object graph shared by serve and worker.
type app struct {
	cfg     config.Config
	db      *sql.DB
	rdb     *redis.Client
	broker  *queue.Broker
	metrics *metrics.Metrics

	auctions *repository.AuctionRepo
	bids     *repository.BidRepo
	users    *repository.UserRepo
	fanout   *events.Fanout
	service  *service.AuctionService
}

func newApp() (*app, error) {
	cfg := config.Load()
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	m := metrics.NewMetrics("")
	rdb := config.NewRedisClient()
	broker := queue.NewBroker(config.LoadQueueConfig(), m)

	a := &app{
		cfg:      cfg,
		db:       db,
		rdb:      rdb,
		broker:   broker,
		metrics:  m,
		auctions: repository.NewAuctionRepo(db),
		bids:     repository.NewBidRepo(db),
		users:    repository.NewUserRepo(db),
	}
	a.fanout = events.NewFanout(rdb, broker, m)
	a.service = service.NewAuctionService(a.auctions, a.bids, a.users, a.fanout, m)
	return a, nil
}

func (a *app) Close() {
	_ = a.broker.Close()
	_ = a.rdb.Close()
	_ = a.db.Close()
}

// connectBroker dials in the background so the process starts even
// when RabbitMQ is down.
func (a *app) connectBroker(ctx context.Context) {
	go func() {
		if err := a.broker.Connect(ctx); err != nil && ctx.Err() == nil {
			logger.Log.Error().Err(err).Msg("broker connect gave up")
		}
	}()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
