package main

import (
	"fmt"
	"os"

	"github.com/matheus3301/chatsync/internal/profile"
	"github.com/spf13/cobra"
)

var profileFlag string

var rootCmd = &cobra.Command{
	Use:           "chatsyncd",
	Short:         "Keep a local model of conversations in sync with the chat server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "profile name (overrides default_profile)")
}

// activeProfile resolves and validates the profile for this invocation.
func activeProfile() (string, error) {
	name := profile.Resolve(profileFlag)
	if err := profile.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
