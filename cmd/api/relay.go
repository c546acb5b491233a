package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var relayOnce bool

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Deliver pending closed-ticket events without serving HTTP",
	RunE:  runRelay,
}

func init() {
	relayCmd.Flags().BoolVar(&relayOnce, "once", false, "drain the outbox once and exit")
}

func runRelay(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx, bootstrapOptions{requireDatabase: true})
	if err != nil {
		return err
	}
	defer app.Close()

	relay, err := app.relay()
	if err != nil {
		return err
	}
	if relayOnce {
		delivered, err := relay.DrainOnce(ctx)
		app.logger.Info("outbox drained", zap.Int("delivered", delivered))
		return err
	}
	return relay.Run(ctx)
}
