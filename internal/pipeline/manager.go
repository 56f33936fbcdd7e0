// Package pipeline orchestrates the database build stages.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"

	"refbuild/internal/assemble"
	"refbuild/internal/compress"
	"refbuild/internal/config"
	"refbuild/internal/download"
	"refbuild/internal/extract"
	"refbuild/internal/integrity"
	"refbuild/internal/logging"
	"refbuild/internal/retry"
	"refbuild/internal/services"
	"refbuild/internal/services/datasets"
	"refbuild/internal/stage"
	"refbuild/internal/tracker"
)

// Stage names accepted by RunStage, in pipeline order.
const (
	StageDownload  = "download"
	StageExtract   = "extract"
	StageIntegrity = "integrity"
	StageAssemble  = "assemble"
	StageCompress  = "compress"
)

var stageOrder = []string{StageDownload, StageExtract, StageIntegrity, StageAssemble, StageCompress}

// Options carries the injectable pieces of a Manager. Zero values select
// production behaviour.
type Options struct {
	// Fetcher overrides the datasets client used by the download stage.
	Fetcher download.Fetcher
	// Policy overrides the retry schedule derived from configuration.
	Policy *retry.Policy
	// Console receives the console copy of stage output. Defaults to stderr.
	Console io.Writer
	// Now overrides the clock used to timestamp run logs.
	Now func() time.Time
}

// Manager runs the build stages in order, fail-fast, under an exclusive
// run lock. Each stage writes a timestamped log file alongside the console
// output, and run outcomes are recorded in the tracker.
type Manager struct {
	cfg     *config.Config
	store   *tracker.Store
	version string

	manifestPath string
	fetcher      download.Fetcher
	policy       retry.Policy
	console      io.Writer
	now          func() time.Time
	logger       *slog.Logger
}

// NewManager builds the orchestrator. The manifest path is only required by
// the download stage; stage commands that never download may pass "".
func NewManager(cfg *config.Config, store *tracker.Store, version, manifestPath string, logger *slog.Logger, opts Options) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		version:      version,
		manifestPath: manifestPath,
		fetcher:      opts.Fetcher,
		console:      opts.Console,
		now:          opts.Now,
		logger:       logger.With(logging.String(logging.FieldComponent, "pipeline")),
	}
	if m.fetcher == nil {
		m.fetcher = datasets.NewClient(cfg.Download.BaseURL, time.Duration(cfg.Download.TimeoutSeconds)*time.Second)
	}
	if opts.Policy != nil {
		m.policy = *opts.Policy
	} else {
		m.policy = retry.Policy{
			MaxAttempts: cfg.Download.MaxAttempts,
			Backoff:     retry.ExponentialBackoff(time.Duration(cfg.Download.BackoffUnitSeconds) * time.Second),
		}
	}
	if m.console == nil {
		m.console = os.Stderr
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Run executes the full pipeline: download, extract, integrity, assemble,
// compress. The first stage failure aborts the run; later stages do not
// execute.
func (m *Manager) Run(ctx context.Context) error {
	if m.version == "" {
		return services.Wrap(services.ErrConfiguration, "pipeline", "validate version", "version tag is required", nil)
	}

	unlock, err := m.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	run, err := m.store.StartRun(ctx, m.version, m.cfg.Paths.BackupDir)
	if err != nil {
		return err
	}
	ctx = services.WithRunID(ctx, run.ID)
	logger := m.logger.With(logging.String(logging.FieldRunID, run.ID))
	logger.Info("pipeline run started", logging.String("version", m.version))

	for _, name := range stageOrder {
		if err := m.runStage(ctx, name, logger); err != nil {
			if finishErr := m.store.FinishRun(ctx, run.ID, tracker.RunOutcomeFailed); finishErr != nil {
				logger.Error("record run failure", logging.Error(finishErr))
			}
			logger.Error("pipeline run failed",
				logging.String(logging.FieldStage, name),
				logging.Error(err),
			)
			return fmt.Errorf("stage %s: %w", name, err)
		}
	}

	if err := m.store.FinishRun(ctx, run.ID, tracker.RunOutcomeCompleted); err != nil {
		return err
	}
	logger.Info("pipeline run completed", logging.String("version", m.version))
	return nil
}

// RunStage executes a single stage under the run lock with its own run log.
// No run record is written; standalone stage invocations are repair tools,
// not tracked runs.
func (m *Manager) RunStage(ctx context.Context, name string) error {
	if !knownStage(name) {
		return services.Wrap(services.ErrConfiguration, "pipeline", "select stage",
			fmt.Sprintf("unknown stage %q", name), nil)
	}
	unlock, err := m.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()
	return m.runStage(ctx, name, m.logger)
}

// Health reports per-stage readiness in pipeline order. Checks are cheap
// filesystem and configuration lookups; nothing is locked and nothing runs.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	checks := make([]stage.Health, 0, len(stageOrder))
	for _, name := range stageOrder {
		checks = append(checks, m.buildStage(name, logging.NewNop()).HealthCheck(ctx))
	}
	return checks
}

func (m *Manager) acquireLock() (func(), error) {
	lock := flock.New(m.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "acquire run lock", m.cfg.LockPath(), err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "acquire run lock",
			"another run holds the lock", nil)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			m.logger.Warn("release run lock", logging.Error(err))
		}
	}, nil
}

// runStage opens the stage's run log, builds the stage with a logger that
// writes to both the log file and the console, and drives Prepare then
// Execute. The run log is closed before returning on every path.
func (m *Manager) runStage(ctx context.Context, name string, logger *slog.Logger) error {
	runLog, err := logging.OpenRunLog(m.cfg.Paths.LogDir, name, m.version, m.now())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := runLog.Close(); closeErr != nil {
			logger.Warn("close run log", logging.Error(closeErr))
		}
	}()

	stageLogger, err := logging.New(logging.Options{
		Level:  m.cfg.Logging.Level,
		Format: m.cfg.Logging.Format,
		Writer: runLog.Tee(m.console),
	})
	if err != nil {
		return err
	}

	// Stage and run identifiers ride the context so every stage record
	// carries them.
	ctx = logging.WithStage(ctx, name)
	handler := m.buildStage(name, logging.WithContext(ctx, stageLogger))

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String(logging.FieldStage, name),
		logging.String("log", runLog.Path()),
	)
	if err := handler.Prepare(ctx); err != nil {
		m.logStageFailure(logger, name, err)
		return err
	}
	if err := handler.Execute(ctx); err != nil {
		m.logStageFailure(logger, name, err)
		return err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String(logging.FieldStage, name),
	)
	return nil
}

func (m *Manager) logStageFailure(logger *slog.Logger, name string, err error) {
	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldStage, name),
		logging.Error(err),
	)
}

func (m *Manager) buildStage(name string, logger *slog.Logger) stage.Handler {
	switch name {
	case StageDownload:
		return download.New(m.cfg, m.store, m.fetcher, m.policy, logger, m.manifestPath)
	case StageExtract:
		return extract.New(m.cfg, m.store, m.policy, logger)
	case StageIntegrity:
		return integrity.New(m.cfg, m.store, logger)
	case StageAssemble:
		return assemble.New(m.cfg, m.store, m.version, logger)
	case StageCompress:
		return compress.New(m.cfg, m.version, logger)
	}
	return nil
}

func knownStage(name string) bool {
	switch name {
	case StageDownload, StageExtract, StageIntegrity, StageAssemble, StageCompress:
		return true
	}
	return false
}
