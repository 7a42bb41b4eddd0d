package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"medidenoise/internal/logger"
	"medidenoise/pkg/config"
	"medidenoise/pkg/denoise"
	"medidenoise/pkg/normalize"
	"medidenoise/pkg/service"
	"medidenoise/pkg/session"
)

// app bundles the long-lived components behind the service
type app struct {
	svc    *service.Service
	store  session.Store
	model  denoise.Model
	logger zerolog.Logger
}

func newPipeline(cfg *config.Config) *normalize.Pipeline {
	return normalize.New(cfg.Normalization.Size, normalize.Mode(cfg.Normalization.Mode))
}

func newApp(ctx context.Context, cfg *config.Config, base zerolog.Logger) (*app, error) {
	model, err := denoise.NewModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	store, err := session.New(ctx, cfg)
	if err != nil {
		denoise.CloseModel(model)
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	adapter := denoise.NewAdapter(model, cfg.Inference.Timeout, cfg.Inference.ClampOutput, logger.Component(base, "denoise"))
	svc := service.New(newPipeline(cfg), adapter, store, logger.Component(base, "service"))
	svc.SetMaxPixels(cfg.Server.MaxPixels)

	base.Debug().
		Str("backend", cfg.Inference.Backend).
		Str("session", cfg.Session.Backend).
		Str("normalization", cfg.Normalization.Mode).
		Msg("Components ready")

	return &app{svc: svc, store: store, model: model, logger: base}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close session store")
	}
	if err := denoise.CloseModel(a.model); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to release model")
	}
}
