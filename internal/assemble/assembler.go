// Package assemble concatenates the surviving genome sequences into the
// versioned reference database artifact.
package assemble

import (
	"context"
	"fmt"
	"io"
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

// Assembler builds the reference database file for one version tag. Inputs
// are concatenated in sorted accession order so repeated builds over the
// same working set produce byte-identical output.
type Assembler struct {
	cfg     *config.Config
	store   *tracker.Store
	version string
	logger  *slog.Logger

	sequences []string
}

// New constructs the assembler for a version tag.
func New(cfg *config.Config, store *tracker.Store, version string, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Assembler{
		cfg:     cfg,
		store:   store,
		version: version,
		logger:  logger.With(logging.String(logging.FieldComponent, "assemble")),
	}
}

// Name implements stage.Handler.
func (a *Assembler) Name() string { return "assemble" }

// Prepare validates the version tag and collects the surviving sequences.
// An empty working set is a validation failure: concatenating nothing would
// silently publish an empty database.
func (a *Assembler) Prepare(context.Context) error {
	if a.version == "" {
		return services.Wrap(services.ErrConfiguration, a.Name(), "validate version", "version tag is required", nil)
	}

	sequences, err := filepath.Glob(filepath.Join(a.cfg.GenomesDir(), "*.fna"))
	if err != nil {
		return services.Wrap(services.ErrConfiguration, a.Name(), "scan sequences", "", err)
	}
	if len(sequences) == 0 {
		return services.Wrap(services.ErrValidation, a.Name(), "scan sequences", "no sequences present to assemble", nil)
	}
	sort.Strings(sequences)
	a.sequences = sequences
	return nil
}

// HealthCheck verifies a version tag is set and sequences exist to
// concatenate.
func (a *Assembler) HealthCheck(context.Context) stage.Health {
	if a.cfg == nil {
		return stage.Unhealthy(a.Name(), "configuration unavailable")
	}
	if a.version == "" {
		return stage.Unhealthy(a.Name(), "version tag missing")
	}
	sequences, err := filepath.Glob(filepath.Join(a.cfg.GenomesDir(), "*.fna"))
	if err != nil {
		return stage.Unhealthy(a.Name(), err.Error())
	}
	if len(sequences) == 0 {
		return stage.Unhealthy(a.Name(), "no sequences present")
	}
	return stage.Healthy(a.Name())
}

// Execute writes the artifact to a temporary file and renames it into place
// only after every input has been copied in full.
func (a *Assembler) Execute(ctx context.Context) error {
	artifactPath := a.cfg.ArtifactPath(a.version)

	tmp, err := os.CreateTemp(filepath.Dir(artifactPath), filepath.Base(artifactPath)+".part*")
	if err != nil {
		return services.Wrap(services.ErrTransient, a.Name(), "create artifact", "", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	var total int64
	var want int64
	for _, seqPath := range a.sequences {
		if err := ctx.Err(); err != nil {
			tmp.Close()
			return err
		}
		written, err := appendSequence(tmp, seqPath)
		if err != nil {
			tmp.Close()
			return services.Wrap(services.ErrTransient, a.Name(), "append sequence", seqPath, err)
		}
		total += written

		info, err := os.Stat(seqPath)
		if err != nil {
			tmp.Close()
			return services.Wrap(services.ErrTransient, a.Name(), "stat sequence", seqPath, err)
		}
		want += info.Size()
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return services.Wrap(services.ErrTransient, a.Name(), "sync artifact", "", err)
	}
	if err := tmp.Close(); err != nil {
		return services.Wrap(services.ErrTransient, a.Name(), "close artifact", "", err)
	}

	if total != want {
		return services.Wrap(services.ErrValidation, a.Name(), "verify artifact",
			fmt.Sprintf("wrote %d bytes, inputs total %d", total, want), nil)
	}

	if err := os.Rename(tmpPath, artifactPath); err != nil {
		return services.Wrap(services.ErrTransient, a.Name(), "publish artifact", artifactPath, err)
	}

	for _, seqPath := range a.sequences {
		accession := manifest.NormalizeAccession(seqPath)
		record, err := a.store.Get(ctx, accession)
		if err != nil {
			return err
		}
		if record == nil {
			continue
		}
		if err := a.store.SetStatus(ctx, accession, tracker.StatusAssembled); err != nil {
			return err
		}
	}

	a.logger.Info("database assembled",
		logging.String("artifact", artifactPath),
		logging.Int("sequences", len(a.sequences)),
		logging.Int64("bytes", total),
	)
	return nil
}

func appendSequence(dst io.Writer, seqPath string) (int64, error) {
	src, err := os.Open(seqPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return io.Copy(dst, src)
}
