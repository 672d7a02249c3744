package main

import (
	"context"

	config "github.com/NordCoder/Herald/internal/config/notifier"
	"github.com/NordCoder/Herald/internal/obs"
	"go.uber.org/zap"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(obs.LogConfig{
		Level:    cfg.Log.Level,
		Pretty:   cfg.Log.Pretty,
		Encoding: cfg.Log.Encoding,
		App:      cfg.App.Name,
		Env:      cfg.App.Env,
		Ver:      cfg.App.Version,
	})
}

func initOTel(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	closer, err := obs.SetupOTel(ctx, &cfg.OTEL)
	if err != nil {
		return nil, err
	}
	return closer.Shutdown, nil
}
