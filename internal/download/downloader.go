// Package download implements the acquisition stage: one local archive per
// manifest accession, obtained from the cheapest source available.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"refbuild/internal/config"
	"refbuild/internal/fileutil"
	"refbuild/internal/logging"
	"refbuild/internal/manifest"
	"refbuild/internal/retry"
	"refbuild/internal/services"
	"refbuild/internal/stage"
	"refbuild/internal/tracker"
)

// Fetcher is the transport used to obtain an archive when neither the local
// cache nor the backup directory has it.
type Fetcher interface {
	FetchArchive(ctx context.Context, accession, destPath string) (int64, error)
}

// Downloader acquires per-accession archives with cache-hit, backup, and
// fetch-with-retry fallbacks.
type Downloader struct {
	cfg          *config.Config
	store        *tracker.Store
	fetcher      Fetcher
	policy       retry.Policy
	logger       *slog.Logger
	manifestPath string
	printer      *message.Printer

	accessions []string
}

// New constructs the acquisition stage.
func New(cfg *config.Config, store *tracker.Store, fetcher Fetcher, policy retry.Policy, logger *slog.Logger, manifestPath string) *Downloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Downloader{
		cfg:          cfg,
		store:        store,
		fetcher:      fetcher,
		policy:       policy,
		logger:       logger.With(logging.String(logging.FieldComponent, "download")),
		manifestPath: manifestPath,
		printer:      message.NewPrinter(language.English),
	}
}

// Name implements stage.Handler.
func (d *Downloader) Name() string { return "download" }

// Prepare reads the accession manifest and seeds the tracker. A missing or
// empty manifest is fatal to the run.
func (d *Downloader) Prepare(ctx context.Context) error {
	if err := d.cfg.EnsureDirectories(); err != nil {
		return services.Wrap(services.ErrConfiguration, d.Name(), "ensure directories", "", err)
	}
	accessions, err := manifest.Read(d.manifestPath, d.logger)
	if err != nil {
		return err
	}
	d.accessions = accessions
	if err := d.store.EnsureAccessions(ctx, accessions); err != nil {
		return services.Wrap(services.ErrTransient, d.Name(), "seed tracker", "", err)
	}
	d.logger.Info("manifest loaded",
		logging.String("manifest", d.manifestPath),
		logging.Int("accessions", len(accessions)),
	)
	return nil
}

// Execute processes every accession in manifest order. Per-accession
// exhaustion is recorded in the failure manifest and absorbed; only a
// failure of the stage's own bookkeeping aborts the batch.
func (d *Downloader) Execute(ctx context.Context) error {
	failures := 0
	for i, accession := range d.accessions {
		if err := ctx.Err(); err != nil {
			return err
		}
		actx := services.WithAccession(ctx, accession)
		if err := d.acquire(actx, accession); err != nil {
			if services.IsFatal(err) || ctx.Err() != nil {
				return err
			}
			failures++
			if recordErr := d.recordFailure(actx, accession, err); recordErr != nil {
				return recordErr
			}
		}
		processed := i + 1
		if processed%d.cfg.Download.ProgressInterval == 0 {
			d.logger.Info("acquisition progress",
				logging.String("processed", d.printer.Sprintf("%d", processed)),
				logging.String("total", d.printer.Sprintf("%d", len(d.accessions))),
				logging.Int("failures", failures),
			)
		}
	}
	d.logger.Info("acquisition finished",
		logging.Int("accessions", len(d.accessions)),
		logging.Int("failures", failures),
	)
	return nil
}

// HealthCheck verifies the inputs acquisition needs before a run.
func (d *Downloader) HealthCheck(context.Context) stage.Health {
	if d.cfg == nil {
		return stage.Unhealthy(d.Name(), "configuration unavailable")
	}
	if d.fetcher == nil {
		return stage.Unhealthy(d.Name(), "fetcher unavailable")
	}
	if d.manifestPath == "" {
		return stage.Unhealthy(d.Name(), "manifest path not set")
	}
	if !fileutil.NonEmptyFile(d.manifestPath) {
		return stage.Unhealthy(d.Name(), fmt.Sprintf("manifest %s missing or empty", d.manifestPath))
	}
	return stage.Healthy(d.Name())
}

// acquire resolves one accession's archive: cache hit, backup copy, then
// network fetch with retry, in that order.
func (d *Downloader) acquire(ctx context.Context, accession string) error {
	logger := logging.WithContext(ctx, d.logger)
	archivePath := d.cfg.ArchivePath(accession)

	ok, err := d.localArchiveUsable(ctx, accession, archivePath)
	if err != nil {
		return err
	}
	if ok {
		logger.Debug("archive cached, skipping")
		return d.store.SetStatus(ctx, accession, tracker.StatusCached)
	}

	if backupPath := d.cfg.BackupArchivePath(accession); backupPath != "" && fileutil.NonEmptyFile(backupPath) {
		if err := fileutil.CopyFileVerified(backupPath, archivePath); err != nil {
			return services.Wrap(services.ErrTransient, d.Name(), "restore from backup", accession, err)
		}
		logger.Info("archive restored from backup")
		return d.store.RecordArchive(ctx, accession, tracker.StatusRestoredFromBackup, fileutil.FileSize(archivePath))
	}

	var written int64
	err = d.policy.Do(ctx, func(attempt int) error {
		n, fetchErr := d.fetcher.FetchArchive(ctx, accession, archivePath)
		if fetchErr != nil {
			logger.Warn("fetch attempt failed",
				logging.Int("attempt", attempt),
				logging.Error(fetchErr),
			)
			return fetchErr
		}
		written = n
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("archive downloaded", logging.Int64("bytes", written))
	return d.store.RecordArchive(ctx, accession, tracker.StatusDownloaded, written)
}

// localArchiveUsable reports whether the existing local archive can satisfy
// the accession. A non-empty archive is accepted unless the tracker recorded
// a different size at acquisition time, in which case the leftover is
// treated as truncated and removed.
func (d *Downloader) localArchiveUsable(ctx context.Context, accession, archivePath string) (bool, error) {
	size := fileutil.FileSize(archivePath)
	if size == 0 {
		return false, nil
	}
	recorded, ok, err := d.store.ArchiveBytes(ctx, accession)
	if err != nil {
		return false, services.Wrap(services.ErrTransient, d.Name(), "query recorded size", accession, err)
	}
	if ok && recorded > 0 && recorded != size {
		logging.WithContext(ctx, d.logger).Warn("local archive size mismatch, refetching",
			logging.Int64("recorded", recorded),
			logging.Int64("actual", size),
		)
		if err := os.Remove(archivePath); err != nil {
			return false, services.Wrap(services.ErrTransient, d.Name(), "remove truncated archive", accession, err)
		}
		return false, nil
	}
	return true, nil
}

func (d *Downloader) recordFailure(ctx context.Context, accession string, cause error) error {
	if err := manifest.AppendEntry(d.cfg.DownloadFailuresPath(), accession); err != nil {
		return services.Wrap(services.ErrTransient, d.Name(), "record failure", accession, err)
	}
	reason := fmt.Sprintf("exhausted %d attempts: %v", d.policy.MaxAttempts, cause)
	if err := d.store.SetFailed(ctx, accession, tracker.StatusFailed, reason); err != nil {
		return err
	}
	logging.WithContext(ctx, d.logger).Error("accession failed, continuing batch", logging.Error(cause))
	return nil
}
