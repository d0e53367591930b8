package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands ~ and environment variables in a file path.
// It handles both ~ for home directory and $VAR style environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}

// expandPaths expands every filesystem path in the configuration. Postgres
// connection strings are left alone.
func (c *Config) expandPaths() {
	if isSQLite(c.Database.Driver) && c.Database.DSN != ":memory:" {
		c.Database.DSN = ExpandPath(c.Database.DSN)
	}
	c.ObjectStore.BasePath = ExpandPath(c.ObjectStore.BasePath)
	c.Dataset.TransactionsPath = ExpandPath(c.Dataset.TransactionsPath)
	c.Dataset.ImportancePath = ExpandPath(c.Dataset.ImportancePath)
	c.Dataset.Drive.ServiceAccountPath = ExpandPath(c.Dataset.Drive.ServiceAccountPath)
}

func isSQLite(driver string) bool {
	switch strings.ToLower(driver) {
	case "sqlite3", "sqlite":
		return true
	default:
		return false
	}
}
