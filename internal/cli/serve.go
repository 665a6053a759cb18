package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/live-auction/internal/bidding"
	"github.com/iliyamo/live-auction/internal/config"
	"github.com/iliyamo/live-auction/internal/handler"
	"github.com/iliyamo/live-auction/internal/logger"
	"github.com/iliyamo/live-auction/internal/ratelimit"
	"github.com/iliyamo/live-auction/internal/realtime"
	"github.com/iliyamo/live-auction/internal/router"
)

const shutdownTimeout = 15 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command: HTTP API, realtime channel
// and the pub/sub relay.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and realtime channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default :$APP_PORT)")
	return cmd
}

func runServe(opts *ServeOptions) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	a.connectBroker(ctx)

	ingress := bidding.NewIngress(a.auctions, a.users, a.broker, a.metrics)
	hub := realtime.NewHub(a.metrics)
	ws := realtime.NewHandler(hub, ingress, a.service,
		ratelimit.NewAdmission(a.rdb, config.LoadAdmissionConfig(), a.metrics),
		a.cfg.JWTSecret, a.metrics)

	go func() {
		if err := realtime.NewBroadcaster(a.rdb, hub).Run(ctx); err != nil {
			logger.Log.Error().Err(err).Msg("broadcaster stopped")
		}
	}()

	e := router.New(router.Deps{
		Cfg:       a.cfg,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Redis:     a.rdb,
		Metrics:   a.metrics,
		Health: handler.NewHealthHandler(map[string]handler.Probe{
			"database": a.db.PingContext,
			"broker": func(context.Context) error {
				if !a.broker.Ready() {
					return errors.New("not connected")
				}
				return nil
			},
		}),
		Auth:     handler.NewAuthHandler(a.cfg, a.users),
		Users:    handler.NewUserHandler(a.users),
		Auctions: handler.NewAuctionHandler(a.service, ingress),
		Realtime: ws,
	})

	addr := opts.Addr
	if addr == "" {
		addr = ":" + a.cfg.Port
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info().Str("addr", addr).Str("env", a.cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}
