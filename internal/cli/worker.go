package cli

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/iliyamo/live-auction/internal/bidding"
	"github.com/iliyamo/live-auction/internal/config"
	"github.com/iliyamo/live-auction/internal/logger"
	"github.com/iliyamo/live-auction/internal/queue"
)

// WorkerOptions holds flags for the worker command.
type WorkerOptions struct {
	*RootOptions
	MetricsAddr string
	NoSweeper   bool
}

// NewWorkerCommand creates the worker command: bid resolution consumers
// and the lifecycle sweeper.
func NewWorkerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WorkerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Resolve queued bids and run the auction lifecycle sweeper",
		Long: `Consume the bid-processing queue and apply each bid with a conditional
update, retrying lost races a bounded number of times. Bids that cannot be
applied are parked on the dead-letter queue. Any number of workers may run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(opts)
		},
	}
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", ":9091", "address serving /metrics (empty disables)")
	cmd.Flags().BoolVar(&opts.NoSweeper, "no-sweeper", false, "do not run the lifecycle sweeper in this process")
	return cmd
}

func runWorker(opts *WorkerOptions) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rcfg := config.LoadResolverConfig()
	qcfg := config.LoadQueueConfig()
	resolver := bidding.NewResolver(a.auctions, a.fanout, bidding.ResolverOptions{
		Policy:          bidding.PolicyFromConfig(rcfg),
		InfraRetryDelay: rcfg.InfraRetryDelay,
	}, a.metrics)

	var metricsSrv *echo.Echo
	if opts.MetricsAddr != "" {
		metricsSrv = echo.New()
		metricsSrv.HideBanner = true
		metricsSrv.HidePort = true
		metricsSrv.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))
		go func() {
			if err := metricsSrv.Start(opts.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = a.broker.Consume(ctx, queue.BidProcessingQueue, qcfg.Prefetch, resolver.HandleDelivery)
	}()
	if !opts.NoSweeper {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.service.RunSweeper(ctx, rcfg.SweepInterval)
		}()
	}
	logger.Log.Info().Int("prefetch", qcfg.Prefetch).Int("max_attempts", rcfg.MaxAttempts).Msg("worker started")

	<-ctx.Done()
	logger.Log.Info().Msg("worker draining")
	wg.Wait()
	if metricsSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(sctx)
	}
	return nil
}
