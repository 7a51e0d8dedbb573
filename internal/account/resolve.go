package account

import "github.com/tanderapp/tander/internal/config"

const DefaultAccountName = "default"

// Resolve determines the active account name using precedence:
// 1. flagOverride (--account flag)
// 2. config.toml default_account
// 3. "default"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultAccount != "" {
		return cfg.DefaultAccount
	}
	return DefaultAccountName
}
