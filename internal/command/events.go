package command

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackchuma/tokenbank/internal/config"
	"github.com/jackchuma/tokenbank/internal/events"
	"github.com/jackchuma/tokenbank/internal/template"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Market event listening",
	}

	var (
		from uint64
		once bool
	)
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Follow NFTListed, NFTSold and NFTListingCancelled events until interrupted, then print them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, false)
			if err != nil {
				return err
			}
			defer e.close()

			w, err := e.watcher(from)
			if err != nil {
				return err
			}
			decimals := e.priceDecimals(ctx)
			if once {
				if _, err := w.Poll(ctx); err != nil {
					return err
				}
			} else if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			snap := w.Feed().Snapshot()
			return report(cmd, template.BuildEventReport(e.names, decimals, snap), struct {
				Summary template.EventSummary `json:"summary"`
				Events  events.Snapshot       `json:"events"`
			}{template.NewEventSummary(e.names, snap), snap})
		},
	}
	watch.Flags().Uint64Var(&from, "from", 0, "first block to read, the current head by default")
	watch.Flags().BoolVar(&once, "once", false, "poll once and exit")

	cmd.AddCommand(watch)
	return cmd
}

// priceDecimals are the permit token's decimals, which listings are priced
// in by default. 18 when the token cannot be read.
func (e *env) priceDecimals(ctx context.Context) uint8 {
	token, err := e.token(true)
	if err != nil {
		return 18
	}
	d, err := token.Decimals(ctx)
	if err != nil {
		return 18
	}
	return d
}

func (e *env) watcher(from uint64) (*events.Watcher, error) {
	if err := config.Require(map[string]common.Address{"market": e.addrs.Market}); err != nil {
		return nil, err
	}
	feed := events.NewFeed(e.cfg.EventCapacity)
	return events.NewWatcher(e.session.Client, e.reader, e.addrs.Market, from, e.cfg.WatchInterval, feed, e.metrics), nil
}
