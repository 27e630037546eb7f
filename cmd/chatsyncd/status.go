package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/profile"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a daemon runs for the profile and who it signs in as",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := activeProfile()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Profile: %s\n", name)

		info, err := lock.Inspect(profile.Dir(name))
		switch {
		case errors.Is(err, os.ErrNotExist):
			fmt.Fprintln(out, "Daemon:  not running")
		case err != nil:
			return err
		default:
			fmt.Fprintf(out, "Daemon:  running (pid %d, since %s)\n", info.PID, info.Since.Format(time.RFC3339))
		}

		cfg, err := config.Load(profile.ConfigPath(name))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Server:  %s (%s)\n", valueOr(cfg.Socket.URL, "(not set)"), cfg.Socket.Transport)
		if cfg.Auth.Token == "" {
			fmt.Fprintln(out, "Token:   (not set)")
			return nil
		}
		id, err := auth.Inspect(cfg.Auth.Token)
		if err != nil {
			fmt.Fprintf(out, "Token:   unreadable (%v)\n", err)
			return nil
		}
		expiry := "no expiry"
		if !id.ExpiresAt.IsZero() {
			expiry = "expires " + id.ExpiresAt.Format(time.RFC3339)
			if time.Now().After(id.ExpiresAt) {
				expiry = "EXPIRED " + id.ExpiresAt.Format(time.RFC3339)
			}
		}
		fmt.Fprintf(out, "Token:   user %d, %s\n", id.UserID, expiry)
		return nil
	},
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
