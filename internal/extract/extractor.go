// Package extract implements the extraction stage: one sequence file per
// local archive, with the same backup-copy, skip-on-resume, and
// retry-with-backoff decision tree as acquisition.
package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"refbuild/internal/config"
	"refbuild/internal/fileutil"
	"refbuild/internal/logging"
	"refbuild/internal/manifest"
	"refbuild/internal/retry"
	"refbuild/internal/services"
	"refbuild/internal/stage"
	"refbuild/internal/tracker"
)

// Extractor unpacks per-accession sequence payloads from local archives.
type Extractor struct {
	cfg    *config.Config
	store  *tracker.Store
	policy retry.Policy
	logger *slog.Logger

	archives []string
}

// New constructs the extraction stage.
func New(cfg *config.Config, store *tracker.Store, policy retry.Policy, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Extractor{
		cfg:    cfg,
		store:  store,
		policy: policy,
		logger: logger.With(logging.String(logging.FieldComponent, "extract")),
	}
}

// Name implements stage.Handler.
func (e *Extractor) Name() string { return "extract" }

// Prepare scans for local archives. Having nothing at all to extract means a
// predecessor never ran, which is fatal to the run.
func (e *Extractor) Prepare(ctx context.Context) error {
	if err := e.cfg.EnsureDirectories(); err != nil {
		return services.Wrap(services.ErrConfiguration, e.Name(), "ensure directories", "", err)
	}
	archives, err := filepath.Glob(filepath.Join(e.cfg.GenomesDir(), "*.zip"))
	if err != nil {
		return services.Wrap(services.ErrConfiguration, e.Name(), "scan archives", "", err)
	}
	if len(archives) == 0 {
		return services.Wrap(services.ErrValidation, e.Name(), "scan archives",
			"no archives present to extract", nil)
	}
	sort.Strings(archives)
	e.archives = archives

	accessions := make([]string, 0, len(archives))
	for _, archive := range archives {
		accessions = append(accessions, manifest.NormalizeAccession(archive))
	}
	if err := e.store.EnsureAccessions(ctx, accessions); err != nil {
		return services.Wrap(services.ErrTransient, e.Name(), "seed tracker", "", err)
	}
	return nil
}

// Execute unpacks every archive. A single bad archive is recorded in the
// extraction failure manifest and never aborts the batch.
func (e *Extractor) Execute(ctx context.Context) error {
	failures := 0
	for _, archivePath := range e.archives {
		if err := ctx.Err(); err != nil {
			return err
		}
		accession := manifest.NormalizeAccession(archivePath)
		actx := services.WithAccession(ctx, accession)
		if err := e.extractOne(actx, accession, archivePath); err != nil {
			if services.IsFatal(err) || ctx.Err() != nil {
				return err
			}
			failures++
			if recordErr := e.recordFailure(actx, accession, err); recordErr != nil {
				return recordErr
			}
		}
	}
	e.logger.Info("extraction finished",
		logging.Int("archives", len(e.archives)),
		logging.Int("failures", failures),
	)
	return nil
}

// HealthCheck verifies there is at least one local archive to unpack.
func (e *Extractor) HealthCheck(context.Context) stage.Health {
	if e.cfg == nil {
		return stage.Unhealthy(e.Name(), "configuration unavailable")
	}
	archives, err := filepath.Glob(filepath.Join(e.cfg.GenomesDir(), "*.zip"))
	if err != nil {
		return stage.Unhealthy(e.Name(), err.Error())
	}
	if len(archives) == 0 {
		return stage.Unhealthy(e.Name(), "no archives present")
	}
	return stage.Healthy(e.Name())
}

func (e *Extractor) extractOne(ctx context.Context, accession, archivePath string) error {
	logger := logging.WithContext(ctx, e.logger)
	seqPath := e.cfg.SequencePath(accession)

	if fileutil.NonEmptyFile(seqPath) {
		logger.Debug("sequence present, skipping")
		return e.store.SetStatus(ctx, accession, tracker.StatusExtracted)
	}

	if backupPath := e.cfg.BackupSequencePath(accession); backupPath != "" && fileutil.NonEmptyFile(backupPath) {
		if err := fileutil.CopyFileVerified(backupPath, seqPath); err != nil {
			return services.Wrap(services.ErrTransient, e.Name(), "restore from backup", accession, err)
		}
		logger.Info("sequence restored from backup")
		return e.store.SetStatus(ctx, accession, tracker.StatusExtracted)
	}

	var written int64
	err := e.policy.Do(ctx, func(attempt int) error {
		n, unpackErr := unpackSequence(archivePath, seqPath)
		if unpackErr != nil {
			logger.Warn("unpack attempt failed",
				logging.Int("attempt", attempt),
				logging.Error(unpackErr),
			)
			return unpackErr
		}
		written = n
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("sequence extracted", logging.Int64("bytes", written))
	return e.store.SetStatus(ctx, accession, tracker.StatusExtracted)
}

func (e *Extractor) recordFailure(ctx context.Context, accession string, cause error) error {
	if err := manifest.AppendEntry(e.cfg.ExtractionFailuresPath(), accession); err != nil {
		return services.Wrap(services.ErrTransient, e.Name(), "record failure", accession, err)
	}
	reason := fmt.Sprintf("exhausted %d attempts: %v", e.policy.MaxAttempts, cause)
	if err := e.store.SetFailed(ctx, accession, tracker.StatusExtractFailed, reason); err != nil {
		return err
	}
	logging.WithContext(ctx, e.logger).Error("extraction failed, continuing batch", logging.Error(cause))
	return nil
}

// unpackSequence streams the archive's FASTA member into destPath via a temp
// file in the same directory. Members under ncbi_dataset/data/ are preferred
// when several .fna entries exist.
func unpackSequence(archivePath, destPath string) (int64, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "extract", "open archive", filepath.Base(archivePath), err)
	}
	defer reader.Close()

	member := selectSequenceMember(reader.File)
	if member == nil {
		return 0, services.Wrap(services.ErrTransient, "extract", "locate payload",
			fmt.Sprintf("%s has no .fna member", filepath.Base(archivePath)), nil)
	}

	src, err := member.Open()
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "extract", "open payload", member.Name, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".part*")
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "extract", "create temp file", destPath, err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, src)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return 0, services.Wrap(services.ErrTransient, "extract", "unpack payload", member.Name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, services.Wrap(services.ErrTransient, "extract", "flush payload", member.Name, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return 0, services.Wrap(services.ErrTransient, "extract", "finalize payload", destPath, err)
	}
	return written, nil
}

func selectSequenceMember(files []*zip.File) *zip.File {
	var fallback *zip.File
	for _, file := range files {
		if file.FileInfo().IsDir() || !strings.HasSuffix(file.Name, ".fna") {
			continue
		}
		if strings.Contains(file.Name, "ncbi_dataset/data/") {
			return file
		}
		if fallback == nil {
			fallback = file
		}
	}
	return fallback
}
