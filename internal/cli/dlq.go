package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/live-auction/internal/config"
	"github.com/iliyamo/live-auction/internal/logger"
	"github.com/iliyamo/live-auction/internal/queue"
)

// DLQOptions holds flags shared by the dead-letter subcommands.
type DLQOptions struct {
	*RootOptions
	Limit int
}

// NewDLQCommand creates the dlq command group.  Replay is an operator
// action: nothing re-enqueues dead letters automatically.
func NewDLQCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DLQOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay dead-lettered bids",
	}
	cmd.PersistentFlags().IntVar(&opts.Limit, "limit", 100, "maximum number of messages to process")

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Print dead-lettered messages without removing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			b := queue.NewBroker(config.LoadQueueConfig(), nil)
			defer b.Close()
			msgs, err := b.Inspect(cmd.Context(), queue.DeadLetterQueue, opts.Limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(msgs)
		},
	}

	var target string
	replay := &cobra.Command{
		Use:   "replay",
		Short: "Move dead-lettered messages back to a work queue",
		Long: `Move up to --limit messages from the dead-letter queue back to --to
(bid-processing by default). Replayed bids are resolved again from
scratch, so bids for ended auctions are rejected again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b := queue.NewBroker(config.LoadQueueConfig(), nil)
			defer b.Close()
			n, err := b.Move(cmd.Context(), queue.DeadLetterQueue, target, opts.Limit)
			logger.Log.Info().Int("moved", n).Str("to", target).Msg("dead letters replayed")
			fmt.Fprintf(cmd.OutOrStdout(), "moved %d message(s) to %s\n", n, target)
			return err
		},
	}
	replay.Flags().StringVar(&target, "to", queue.BidProcessingQueue, "destination queue")

	cmd.AddCommand(inspect, replay)
	return cmd
}
