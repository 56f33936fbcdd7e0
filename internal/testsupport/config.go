// Package testsupport provides shared helpers for package tests: temp-dir
// backed configs, tracker stores, and sized file fixtures.
package testsupport

import (
	"path/filepath"
	"testing"

	"refbuild/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "work", "logs")
	cfg.Download.ProgressInterval = 100

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithBackupDir points the test config at a backup directory.
func WithBackupDir(dir string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Paths.BackupDir = dir
	}
}

// WithProgressInterval overrides the acquisition progress cadence.
func WithProgressInterval(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Download.ProgressInterval = n
	}
}
