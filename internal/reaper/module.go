package reaper

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/openpress/identity/internal/account"
	"github.com/openpress/identity/internal/config"
)

// NewModule returns the reaper module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(config *config.AppConfig, log *zap.Logger, repo account.Repository) *Scheduler {
					return NewScheduler(&config.Reaper, log, repo)
				},
			),
		),
		fx.Invoke(registerHooks),
	)
}

func registerHooks(
	lifecycle fx.Lifecycle,
	scheduler *Scheduler,
	config *config.AppConfig,
	logger *zap.Logger,
) {
	if !config.Reaper.Enabled {
		logger.Info("account reaper is disabled")
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				scheduler.Start(runCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
