package main

import (
	"time"

	"github.com/spf13/cobra"

	"medidenoise/internal/logger"
	"medidenoise/pkg/server"
	"medidenoise/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logger.Component(baseLogger, "cli")

		a, err := newApp(ctx, cfg, baseLogger)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.svc.CheckHealth(ctx); err != nil {
			log.Warn().Err(err).Msg("Model backend not available")
		}

		go session.RunJanitor(ctx, a.store, janitorInterval(cfg.Session.TTL), logger.Component(baseLogger, "session"))

		log.Info().
			Str("backend", cfg.Inference.Backend).
			Str("normalization", cfg.Normalization.Mode).
			Dur("sessionTTL", cfg.Session.TTL).
			Msg("Starting medidenoise")

		return server.New(a.svc, cfg, logger.Component(baseLogger, "server")).Run(ctx)
	},
}

// janitorInterval sweeps four times per ttl, at most once a second
func janitorInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}
