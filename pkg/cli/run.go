package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pagewire"
	"github.com/vango-dev/pagewire/internal/config"
)

func runCmd(opts Options, configPath *string) *cobra.Command {
	var (
		relayURL string
		listen   string
		watch    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the relay and serve pages",
		Long: `Connect to the relay and serve pages until interrupted.

On SIGINT or SIGTERM, running pages finish, queued messages are flushed
and sessions are persisted to the snapshot backend.

Examples:
  pagewire run
  pagewire run --relay wss://relay.example.com/socket
  pagewire run --listen 0.0.0.0:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if relayURL != "" {
				cfg.Relay.URL = relayURL
			}
			if cmd.Flags().Changed("listen") {
				cfg.Operator.Listen = listen
			}

			logger, level, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
			if err != nil {
				return err
			}

			appOpts := append([]pagewire.Option{pagewire.WithLogger(logger)}, opts.AppOptions...)
			app, err := pagewire.New(cfg, appOpts...)
			if err != nil {
				return err
			}
			if opts.Register != nil {
				opts.Register(app.Router())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if watch && cfg.Path() != "" {
				go func() {
					if err := config.Watch(ctx, cfg.Path(), followLogLevel(logger, level)); err != nil {
						logger.Warn("config watch failed", "path", cfg.Path(), "error", err)
					}
				}()
			}
			return app.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&relayURL, "relay", "", "Relay URL (overrides relay.url)")
	cmd.Flags().BoolVar(&watch, "watch-config", true, "Apply log.level changes from the config file without a restart")
	cmd.Flags().StringVar(&listen, "listen", "", "Operator API address, empty to disable (overrides operator.listen)")

	return cmd
}
