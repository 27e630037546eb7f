package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/daemon"
	"github.com/matheus3301/chatsync/internal/profile"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync daemon in the foreground",
	Long:  "Run the sync daemon. SIGHUP re-reads the profile config and hands the new access token to the open channel.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := activeProfile()
		if err != nil {
			return err
		}

		var (
			tokens *auth.Holder
			logger *zap.Logger
		)
		app := fx.New(
			daemon.Module(daemon.Params{ProfileName: name}),
			fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
				return &fxevent.ZapLogger{Logger: l.Named("fx")}
			}),
			fx.Populate(&tokens, &logger),
		)
		if err := app.Err(); err != nil {
			return err
		}

		startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
		defer cancel()
		if err := app.Start(startCtx); err != nil {
			return err
		}

		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

		done := app.Done()
	loop:
		for {
			select {
			case <-hup:
				reloadToken(name, tokens, logger)
			case <-done:
				break loop
			}
		}

		stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer cancel()
		return app.Stop(stopCtx)
	},
}

func reloadToken(name string, tokens *auth.Holder, logger *zap.Logger) {
	cfg, err := config.Load(profile.ConfigPath(name))
	if err != nil {
		logger.Warn("config reload failed", zap.Error(err))
		return
	}
	if cfg.Auth.Token == tokens.AccessToken() {
		logger.Info("config reloaded, token unchanged")
		return
	}
	tokens.Set(cfg.Auth.Token)
	logger.Info("access token rotated", zap.Int("subscribers", tokens.Subscribers()))
}
