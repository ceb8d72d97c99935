package notify

import (
	"context"

	"github.com/fitmirror/fitmirror/internal/config"
	obsmetrics "github.com/fitmirror/fitmirror/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notify",
	fx.Provide(NewFromConfig),
	fx.Provide(provideDispatcher),
)

func NewFromConfig(cfg config.Config) Provider {
	if cfg.SMTP.Host == "" {
		return &NoOpProvider{}
	}
	return NewSMTP(SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}

func provideDispatcher(lc fx.Lifecycle, log *zap.Logger, provider Provider, metrics *obsmetrics.Metrics) *Dispatcher {
	d := NewDispatcher(log, provider, metrics)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			d.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return d.Stop(ctx)
		},
	})
	return d
}
