package profile

import (
	"fmt"
	"regexp"

	"github.com/matheus3301/chatsync/internal/config"
)

const DefaultName = "main"

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name is usable as a directory name.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid profile name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// Resolve picks the active profile: the flag if set, then default_profile
// from the global config, then "main".
func Resolve(flag string) string {
	if flag != "" {
		return flag
	}
	g, err := config.LoadGlobal(GlobalConfigPath())
	if err == nil && g.DefaultProfile != "" {
		return g.DefaultProfile
	}
	return DefaultName
}
