package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chordialapp/metronome/pkg/config"
	"github.com/chordialapp/metronome/pkg/monitor"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring agent until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		logger, err := newLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync()

		mgr, err := monitor.New(logger, cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := mgr.Start(ctx); err != nil {
			return err
		}
		logger.Info("agent running", zap.String("admin", cfg.Admin.Addr))

		<-ctx.Done()
		logger.Info("shutting down")
		mgr.Stop()
		return nil
	},
}
