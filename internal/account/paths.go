// Package account manages the per-account workspace under ~/.tander:
// cache database, persisted token, logs and the single-instance lock.
package account

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.tander.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tander")
}

// Dir returns the account-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "accounts", name)
}

// CacheDBPath returns the sqlite cache path for an account.
func CacheDBPath(name string) string {
	return filepath.Join(Dir(name), "cache.db")
}

// TokenPath returns the persisted token path for an account.
func TokenPath(name string) string {
	return filepath.Join(Dir(name), "token.json")
}

// LockPath returns the lock file path for an account.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// LogDir returns the log directory for an account.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the client log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "tander.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the account directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
