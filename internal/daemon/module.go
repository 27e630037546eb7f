// Package daemon composes the sync engine and its ambient services.
package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/messenger"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/profile"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/matheus3301/chatsync/internal/transport/grpcrpc"
	"github.com/matheus3301/chatsync/internal/transport/ws"
	"github.com/matheus3301/chatsync/internal/upload"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// connectTimeout bounds the initial dial and roster fetch.
const connectTimeout = 30 * time.Second

// Params holds the resolved profile passed to the fx module.
type Params struct {
	ProfileName string
	// Config, if set, is used instead of the profile's config file.
	Config *config.Config
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideRegistry,
			provideMetrics,
			provideTokens,
			provideDialer,
			provideUploader,
			provideMessenger,
			provideLock,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, p.Config.Validate()
	}
	return config.Load(profile.ConfigPath(p.ProfileName))
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), cfg.Log.Level, p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideMetrics(reg *prometheus.Registry) (*metrics.Metrics, error) {
	return metrics.New(reg)
}

func provideTokens(cfg *config.Config) *auth.Holder {
	return auth.NewHolder(cfg.Auth.Token)
}

func provideDialer(cfg *config.Config, logger *zap.Logger) (transport.Dialer, error) {
	switch cfg.Socket.Transport {
	case "ws":
		return ws.Dialer{Logger: logger.Named("ws")}, nil
	case "grpc":
		return grpcrpc.Dialer{Logger: logger.Named("grpc")}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Socket.Transport)
}

func provideUploader(cfg *config.Config, tokens *auth.Holder) outbox.Uploader {
	return upload.NewUploader(cfg.Upload.Endpoint, tokens.AccessToken)
}

func provideMessenger(cfg *config.Config, dialer transport.Dialer, tokens *auth.Holder, uploader outbox.Uploader, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *messenger.Store {
	return messenger.New(dialer, tokens, messenger.Options{
		PageSize:     cfg.Conversation.PageSize,
		InitialLimit: cfg.Conversation.InitialLimit,
		TypingQuiet:  cfg.Typing.QuietPeriod.Duration,
		TypingWindow: cfg.Typing.ThrottleWindow.Duration,
		Bus:          b,
		Metrics:      m,
		Uploader:     uploader,
		Logger:       logger.Named("messenger"),
	})
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock")
	l, err := lock.Acquire(profile.Dir(p.ProfileName), p.ProfileName)
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// userID returns the configured user id, falling back to the subject of
// the access token.
func userID(cfg *config.Config, tokens auth.TokenSource) (int64, error) {
	if cfg.Socket.UserID != 0 {
		return cfg.Socket.UserID, nil
	}
	id, err := auth.Inspect(tokens.AccessToken())
	if err != nil {
		return 0, fmt.Errorf("resolve user id: %w", err)
	}
	return id.UserID, nil
}

// connect opens the channel and fetches the roster.
func connect(ctx context.Context, store *messenger.Store, cfg *config.Config, tokens auth.TokenSource) error {
	uid, err := userID(cfg, tokens)
	if err != nil {
		return err
	}
	if err := store.InitSocket(ctx, cfg.Socket.URL, uid); err != nil {
		return err
	}
	return store.LoadMessengerInfo(ctx)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *Server, lk *lock.Lock, store *messenger.Store, tokens *auth.Holder, b *bus.Bus, logger *zap.Logger) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if srv != nil {
				go func() {
					if err := srv.Start(); err != nil {
						logger.Error("metrics server error", zap.Error(err))
					}
				}()
			}

			var ctx context.Context
			ctx, cancel = context.WithTimeout(context.Background(), connectTimeout)
			go func() {
				defer cancel()
				if err := connect(ctx, store, cfg, tokens); err != nil {
					logger.Error("initial connect failed", zap.Error(err))
					return
				}
				logger.Info("messenger ready", zap.Int("groups", len(store.Groups())), zap.Int("conversations", len(store.Conversations())))
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if err := store.Close(); err != nil {
				logger.Warn("error closing channel", zap.Error(err))
			}
			if srv != nil {
				srv.Stop(ctx)
			}
			b.Close()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
