// Package profile locates per-profile state on disk. A profile is one
// account configuration with its own config file, logs and lock.
package profile

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory when set.
const HomeEnv = "CHATSYNC_HOME"

// BaseDir returns $CHATSYNC_HOME or ~/.chatsync.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatsync")
}

// Dir returns the directory of profile name.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// ConfigPath returns the config file of profile name.
func ConfigPath(name string) string {
	return filepath.Join(Dir(name), "config.toml")
}

// LogPath returns the daemon log file of profile name.
func LogPath(name string) string {
	return filepath.Join(Dir(name), "logs", "chatsyncd.log")
}

// GlobalConfigPath returns the global config file path.
func GlobalConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), filepath.Dir(LogPath(name))} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
