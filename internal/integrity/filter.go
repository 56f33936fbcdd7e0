// Package integrity implements the zero-byte quarantine step between
// extraction and assembly.
package integrity

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"refbuild/internal/config"
	"refbuild/internal/logging"
	"refbuild/internal/manifest"
	"refbuild/internal/services"
	"refbuild/internal/stage"
	"refbuild/internal/tracker"
)

// Filter scans extracted sequences after the whole batch has been
// extracted, quarantines zero-byte results, and produces the merged
// missing-genome report.
type Filter struct {
	cfg    *config.Config
	store  *tracker.Store
	logger *slog.Logger
}

// New constructs the integrity filter.
func New(cfg *config.Config, store *tracker.Store, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Filter{
		cfg:    cfg,
		store:  store,
		logger: logger.With(logging.String(logging.FieldComponent, "integrity")),
	}
}

// Name implements stage.Handler.
func (f *Filter) Name() string { return "integrity" }

// Prepare is a no-op: an empty working set is legal here and surfaces as an
// assembly-stage failure instead.
func (f *Filter) Prepare(context.Context) error { return nil }

// HealthCheck verifies the working directory the filter scans is reachable.
func (f *Filter) HealthCheck(context.Context) stage.Health {
	if f.cfg == nil {
		return stage.Unhealthy(f.Name(), "configuration unavailable")
	}
	if info, err := os.Stat(f.cfg.GenomesDir()); err != nil || !info.IsDir() {
		return stage.Unhealthy(f.Name(), "genomes directory missing")
	}
	return stage.Healthy(f.Name())
}

// Execute quarantines zero-length sequences and merges all failure reports
// into the combined missing-genome report.
func (f *Filter) Execute(ctx context.Context) error {
	sequences, err := filepath.Glob(filepath.Join(f.cfg.GenomesDir(), "*.fna"))
	if err != nil {
		return services.Wrap(services.ErrConfiguration, f.Name(), "scan sequences", "", err)
	}
	sort.Strings(sequences)

	quarantined := 0
	for _, seqPath := range sequences {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := os.Stat(seqPath)
		if err != nil {
			return services.Wrap(services.ErrTransient, f.Name(), "stat sequence", seqPath, err)
		}
		if info.Size() > 0 {
			continue
		}

		accession := manifest.NormalizeAccession(seqPath)
		actx := services.WithAccession(ctx, accession)
		if err := manifest.AppendEntry(f.cfg.EmptyListPath(), accession); err != nil {
			return services.Wrap(services.ErrTransient, f.Name(), "record empty sequence", accession, err)
		}
		if err := os.Remove(seqPath); err != nil {
			return services.Wrap(services.ErrTransient, f.Name(), "remove empty sequence", accession, err)
		}
		if record, err := f.store.Get(ctx, accession); err != nil {
			return err
		} else if record != nil {
			if err := f.store.SetFailed(ctx, accession, tracker.StatusEmpty, "zero-byte extraction result"); err != nil {
				return err
			}
		}
		quarantined++
		logging.WithContext(actx, f.logger).Warn("zero-byte sequence quarantined")
	}

	if err := manifest.Merge(
		f.cfg.MissingReportPath(),
		f.cfg.EmptyListPath(),
		f.cfg.DownloadFailuresPath(),
		f.cfg.ExtractionFailuresPath(),
	); err != nil {
		return services.Wrap(services.ErrTransient, f.Name(), "merge missing report", "", err)
	}

	f.logger.Info("integrity filter finished",
		logging.Int("scanned", len(sequences)),
		logging.Int("quarantined", quarantined),
	)
	return nil
}
