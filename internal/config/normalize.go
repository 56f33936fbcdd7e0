package config

import (
	"os"
	"path/filepath"
	"strings"
)

// BackupDirEnv overrides paths.backup_dir when set; it exists so operators
// can point a run at a secondary copy without editing the config file.
const BackupDirEnv = "REFBUILD_BACKUP_DIR"

// VersionEnv supplies the database version tag when the --version flag is
// omitted. Commands read it directly; it never lives in the config file
// because a version tag belongs to one run, not to the installation.
const VersionEnv = "REFBUILD_VERSION"

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDownload()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if env := strings.TrimSpace(os.Getenv(BackupDirEnv)); env != "" {
		c.Paths.BackupDir = env
	}

	workDir, err := expandPath(strings.TrimSpace(c.Paths.WorkDir))
	if err != nil {
		return err
	}
	c.Paths.WorkDir = workDir

	if trimmed := strings.TrimSpace(c.Paths.BackupDir); trimmed != "" {
		backupDir, err := expandPath(trimmed)
		if err != nil {
			return err
		}
		c.Paths.BackupDir = backupDir
	} else {
		c.Paths.BackupDir = ""
	}

	logDir := strings.TrimSpace(c.Paths.LogDir)
	if logDir == "" {
		logDir = filepath.Join(c.Paths.WorkDir, "logs")
	}
	expandedLogDir, err := expandPath(logDir)
	if err != nil {
		return err
	}
	c.Paths.LogDir = expandedLogDir
	return nil
}

func (c *Config) normalizeDownload() {
	c.Download.BaseURL = strings.TrimRight(strings.TrimSpace(c.Download.BaseURL), "/")
	if c.Download.BaseURL == "" {
		c.Download.BaseURL = defaultDownloadBaseURL
	}
	if c.Download.TimeoutSeconds <= 0 {
		c.Download.TimeoutSeconds = defaultDownloadTimeout
	}
	if c.Download.MaxAttempts <= 0 {
		c.Download.MaxAttempts = defaultMaxAttempts
	}
	if c.Download.BackoffUnitSeconds <= 0 {
		c.Download.BackoffUnitSeconds = defaultBackoffUnitSeconds
	}
	if c.Download.ProgressInterval <= 0 {
		c.Download.ProgressInterval = defaultProgressInterval
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
