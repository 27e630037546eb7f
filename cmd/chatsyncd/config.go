package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/profile"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().StringVar(&initURL, "url", "", "server socket URL")
	configInitCmd.Flags().StringVar(&initToken, "token", "", "access token")
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config")
}

var (
	initURL   string
	initToken string
	initForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the profile configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration of the profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := activeProfile()
		if err != nil {
			return err
		}
		cfg, err := config.Load(profile.ConfigPath(name))
		if err != nil {
			return err
		}
		if cfg.Auth.Token != "" {
			cfg.Auth.Token = mask(cfg.Auth.Token)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", profile.ConfigPath(name))
		return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration for the profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := activeProfile()
		if err != nil {
			return err
		}
		path := profile.ConfigPath(name)
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		cfg := config.Default()
		cfg.Socket.URL = initURL
		cfg.Auth.Token = initToken
		if err := config.Save(path, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func mask(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
