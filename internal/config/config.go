package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for a pipeline run.
type Paths struct {
	// WorkDir is the root working/output directory. Per-accession files live
	// under WorkDir/genomes; the assembled artifact is written to WorkDir.
	WorkDir string `toml:"work_dir"`
	// BackupDir is an optional pre-populated source of archives and sequence
	// files, consulted before any network fetch. It is not required to exist.
	BackupDir string `toml:"backup_dir"`
	// LogDir holds per-stage run logs. Defaults to WorkDir/logs.
	LogDir string `toml:"log_dir"`
}

// Download contains configuration for the genome-archive endpoint and the
// acquisition retry schedule.
type Download struct {
	BaseURL            string `toml:"base_url"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
	MaxAttempts        int    `toml:"max_attempts"`
	BackoffUnitSeconds int    `toml:"backoff_unit_seconds"`
	ProgressInterval   int    `toml:"progress_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for refbuild.
//
// Configuration sections by subsystem:
//   - Paths: working/output, backup, and log directories
//   - Download: archive endpoint, timeouts, retry budget and backoff
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Download Download `toml:"download"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/refbuild/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. Environment overrides
// (REFBUILD_BACKUP_DIR) are applied during normalization.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("refbuild.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a pipeline run writes into.
// BackupDir is deliberately excluded: an absent backup directory means "no
// backup available", never an error.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.GenomesDir(), c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// GenomesDir returns the per-accession file directory under the work dir.
func (c *Config) GenomesDir() string {
	return filepath.Join(c.Paths.WorkDir, "genomes")
}

// ArchivePath returns the local archive location for an accession.
func (c *Config) ArchivePath(accession string) string {
	return filepath.Join(c.GenomesDir(), accession+".zip")
}

// SequencePath returns the extracted sequence location for an accession.
func (c *Config) SequencePath(accession string) string {
	return filepath.Join(c.GenomesDir(), accession+".fna")
}

// BackupArchivePath returns the backup-directory archive location for an
// accession, or "" when no backup directory is configured.
func (c *Config) BackupArchivePath(accession string) string {
	if c.Paths.BackupDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.BackupDir, accession+".zip")
}

// BackupSequencePath returns the backup-directory sequence location for an
// accession, or "" when no backup directory is configured.
func (c *Config) BackupSequencePath(accession string) string {
	if c.Paths.BackupDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.BackupDir, accession+".fna")
}

// EmptyListPath returns the zero-byte quarantine manifest location.
func (c *Config) EmptyListPath() string {
	return filepath.Join(c.GenomesDir(), "empty_list.txt")
}

// DownloadFailuresPath returns the download failure manifest location.
func (c *Config) DownloadFailuresPath() string {
	return filepath.Join(c.GenomesDir(), "failed_download.txt")
}

// ExtractionFailuresPath returns the extraction failure manifest location.
func (c *Config) ExtractionFailuresPath() string {
	return filepath.Join(c.GenomesDir(), "failed_extraction.txt")
}

// MissingReportPath returns the merged missing-genome report location.
func (c *Config) MissingReportPath() string {
	return filepath.Join(c.Paths.WorkDir, "missing_fna.txt")
}

// ArtifactPath returns the assembled database location for a version tag.
func (c *Config) ArtifactPath(version string) string {
	return filepath.Join(c.Paths.WorkDir, "refseq_database_"+version+".fa")
}

// CompressedArtifactPath returns the compressed database location for a
// version tag.
func (c *Config) CompressedArtifactPath(version string) string {
	return c.ArtifactPath(version) + ".gz"
}

// TrackerPath returns the accession status database location.
func (c *Config) TrackerPath() string {
	return filepath.Join(c.Paths.WorkDir, "tracker.db")
}

// LockPath returns the run lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.WorkDir, "refbuild.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
