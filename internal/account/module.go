package account

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/openpress/identity/internal/config"
	"github.com/openpress/identity/internal/database"
)

// NewModule returns the account module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(manager *database.Manager) Repository {
					return NewRepository(manager.DB())
				},
			),
			fx.Annotate(
				func(log *zap.Logger) Notifier {
					return NewLogNotifier(log)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig, log *zap.Logger, repo Repository) *TokenService {
					return NewTokenService(&config.Auth, log, repo)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig, log *zap.Logger, repo Repository, notifier Notifier) *VerificationIssuer {
					return NewVerificationIssuer(&config.Auth, log, repo, notifier)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig, log *zap.Logger, repo Repository, tokens *TokenService, verifier *VerificationIssuer, notifier Notifier) *Service {
					return NewService(&config.Auth, log, repo, tokens, verifier, notifier)
				},
			),
			fx.Annotate(
				func(svc *Service, config *config.AppConfig, log *zap.Logger) *Handler {
					return NewHandler(svc, &config.Auth, log)
				},
			),
			fx.Annotate(
				func(tokens *TokenService) *Middleware {
					return NewMiddleware(tokens)
				},
			),
		),
	)
}
