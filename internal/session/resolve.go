package session

import (
	"os"

	"github.com/mumblechat/mumble/internal/config"
)

const DefaultSessionName = "main"

// Resolve picks the active session: the --session flag, then MUMBLE_SESSION,
// then default_session from config.toml, then "main". An unreadable config
// file is treated as absent here; the daemon reports it when it loads config.
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if env := os.Getenv("MUMBLE_SESSION"); env != "" {
		return env
	}
	if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
