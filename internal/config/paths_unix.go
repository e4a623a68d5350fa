//go:build !windows

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".eaton-ups-exporter", "config.yaml"),
		"/etc/eaton-ups-exporter/config.yaml",
	}
}
