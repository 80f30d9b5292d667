package command

import (
	"net"

	"github.com/jackchuma/tokenbank/internal/api"
	"github.com/jackchuma/tokenbank/internal/events"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay API",
		Long: "Serves token reads, permit submission and the market event feed over HTTP. " +
			"Submission is only enabled when a signer is configured; it pays the gas.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			relay := cfg.Signer.Sources() == 1
			e, err := connectWith(ctx, cfg, relay)
			if err != nil {
				return err
			}
			defer e.close()

			token, err := e.token(true)
			if err != nil {
				return err
			}
			deps := api.Deps{
				ChainID:       e.chainID(),
				Caller:        e.reader,
				Token:         token,
				Names:         e.names,
				Metrics:       e.metrics,
				PriceDecimals: e.priceDecimals(ctx),
			}
			if relay {
				if deps.Submitter, err = e.submitter(); err != nil {
					return err
				}
				logrus.WithField("relayer", e.account().Hex()).Info("Permit submission enabled")
			} else {
				logrus.Warn("No signer configured, permit submission is disabled")
			}

			g, gctx := errgroup.WithContext(ctx)
			var w *events.Watcher
			if watch {
				if w, err = e.watcher(0); err != nil {
					return err
				}
				deps.Feed = w.Feed()
				g.Go(func() error { return w.Run(gctx) })
			}

			server := api.NewServer(deps)
			addr := net.JoinHostPort(cfg.API.Host, cfg.API.Port)
			g.Go(func() error { return server.Run(gctx, addr) })

			err = g.Wait()
			if ctx.Err() != nil {
				logrus.Info("Relay stopped")
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "follow market events and serve them on /v1/events")
	return cmd
}
