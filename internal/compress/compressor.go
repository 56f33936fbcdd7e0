// Package compress gzips the assembled reference database in place.
package compress

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"refbuild/internal/config"
	"refbuild/internal/logging"
	"refbuild/internal/services"
	"refbuild/internal/stage"
)

// Compressor replaces the flat database artifact with its gzip form. The
// flat file is removed only after the compressed copy is fully written and
// in place, so an interrupted run never loses the artifact.
type Compressor struct {
	cfg     *config.Config
	version string
	logger  *slog.Logger
}

// New constructs the compressor for a version tag.
func New(cfg *config.Config, version string, logger *slog.Logger) *Compressor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Compressor{
		cfg:     cfg,
		version: version,
		logger:  logger.With(logging.String(logging.FieldComponent, "compress")),
	}
}

// Name implements stage.Handler.
func (c *Compressor) Name() string { return "compress" }

// Prepare validates the version tag.
func (c *Compressor) Prepare(context.Context) error {
	if c.version == "" {
		return services.Wrap(services.ErrConfiguration, c.Name(), "validate version", "version tag is required", nil)
	}
	return nil
}

// HealthCheck verifies a version tag is set and an artifact exists to
// compress. An already-compressed artifact still counts as ready because
// Execute treats it as a completed no-op.
func (c *Compressor) HealthCheck(context.Context) stage.Health {
	if c.cfg == nil {
		return stage.Unhealthy(c.Name(), "configuration unavailable")
	}
	if c.version == "" {
		return stage.Unhealthy(c.Name(), "version tag missing")
	}
	if _, err := os.Stat(c.cfg.ArtifactPath(c.version)); err == nil {
		return stage.Healthy(c.Name())
	}
	if _, err := os.Stat(c.cfg.CompressedArtifactPath(c.version)); err == nil {
		return stage.Healthy(c.Name())
	}
	return stage.Unhealthy(c.Name(), "no database artifact present")
}

// Execute compresses the flat artifact. When only the compressed artifact
// exists the stage already ran and Execute is a no-op, which keeps reruns of
// a finished pipeline safe.
func (c *Compressor) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	flatPath := c.cfg.ArtifactPath(c.version)
	gzPath := c.cfg.CompressedArtifactPath(c.version)

	if _, err := os.Stat(flatPath); errors.Is(err, fs.ErrNotExist) {
		if _, gzErr := os.Stat(gzPath); gzErr == nil {
			c.logger.Info("database already compressed", logging.String("artifact", gzPath))
			return nil
		}
		return services.Wrap(services.ErrNotFound, c.Name(), "locate database", flatPath, err)
	} else if err != nil {
		return services.Wrap(services.ErrTransient, c.Name(), "locate database", flatPath, err)
	}

	written, err := c.compress(flatPath, gzPath)
	if err != nil {
		return err
	}

	if err := os.Remove(flatPath); err != nil {
		return services.Wrap(services.ErrTransient, c.Name(), "remove flat database", flatPath, err)
	}

	c.logger.Info("database compressed",
		logging.String("artifact", gzPath),
		logging.Int64("bytes", written),
	)
	return nil
}

func (c *Compressor) compress(flatPath, gzPath string) (int64, error) {
	src, err := os.Open(flatPath)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, c.Name(), "open database", flatPath, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(gzPath), filepath.Base(gzPath)+".part*")
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, c.Name(), "create compressed database", "", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	writer := gzip.NewWriter(tmp)
	if _, err := io.Copy(writer, src); err != nil {
		writer.Close()
		tmp.Close()
		return 0, services.Wrap(services.ErrTransient, c.Name(), "compress database", flatPath, err)
	}
	if err := writer.Close(); err != nil {
		tmp.Close()
		return 0, services.Wrap(services.ErrTransient, c.Name(), "flush compressed database", "", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, services.Wrap(services.ErrTransient, c.Name(), "sync compressed database", "", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, services.Wrap(services.ErrTransient, c.Name(), "close compressed database", "", err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, c.Name(), "stat compressed database", "", err)
	}
	if err := os.Rename(tmpPath, gzPath); err != nil {
		return 0, services.Wrap(services.ErrTransient, c.Name(), "publish compressed database", gzPath, err)
	}
	return info.Size(), nil
}
