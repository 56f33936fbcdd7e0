package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"refbuild/internal/config"
	"refbuild/internal/pipeline"
	"refbuild/internal/tracker"
)

// newStageCommands exposes each pipeline stage as a standalone command so a
// partially failed run can be repaired without re-running earlier stages.
func newStageCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newDownloadCommand(ctx),
		newExtractCommand(ctx),
		newFilterCommand(ctx),
		newAssembleCommand(ctx),
		newCompressCommand(ctx),
	}
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var manifestFlag string
	var backupDirFlag string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Acquire genome archives for every manifest accession",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(ctx, cmd, pipeline.StageDownload, "", manifestFlag, backupDirFlag)
		},
	}
	cmd.Flags().StringVarP(&manifestFlag, "manifest", "m", "", "Path to the accession manifest (TSV)")
	cmd.Flags().StringVar(&backupDirFlag, "backup-dir", "", "Directory of pre-fetched archives consulted before downloading")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var backupDirFlag string

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract sequence files from the downloaded archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(ctx, cmd, pipeline.StageExtract, "", "", backupDirFlag)
		},
	}
	cmd.Flags().StringVar(&backupDirFlag, "backup-dir", "", "Directory of pre-extracted sequences consulted before unpacking")
	return cmd
}

func newFilterCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "filter",
		Short: "Quarantine zero-byte sequences and write the missing-genome report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(ctx, cmd, pipeline.StageIntegrity, "", "", "")
		},
	}
}

func newAssembleCommand(ctx *commandContext) *cobra.Command {
	var versionFlag string

	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Concatenate the surviving sequences into the versioned database",
		RunE: func(cmd *cobra.Command, args []string) error {
			version := resolveVersion(versionFlag)
			if version == "" {
				return fmt.Errorf("a version tag is required (--version or %s)", config.VersionEnv)
			}
			return runStage(ctx, cmd, pipeline.StageAssemble, version, "", "")
		},
	}
	cmd.Flags().StringVarP(&versionFlag, "version", "v", "", "Version tag for the assembled database")
	return cmd
}

func newCompressCommand(ctx *commandContext) *cobra.Command {
	var versionFlag string

	cmd := &cobra.Command{
		Use:   "compress",
		Short: "Gzip the assembled database in place",
		RunE: func(cmd *cobra.Command, args []string) error {
			version := resolveVersion(versionFlag)
			if version == "" {
				return fmt.Errorf("a version tag is required (--version or %s)", config.VersionEnv)
			}
			return runStage(ctx, cmd, pipeline.StageCompress, version, "", "")
		},
	}
	cmd.Flags().StringVarP(&versionFlag, "version", "v", "", "Version tag of the assembled database")
	return cmd
}

func runStage(ctx *commandContext, cmd *cobra.Command, stage, version, manifestPath, backupDir string) error {
	return ctx.withStore(func(cfg *config.Config, store *tracker.Store) error {
		if dir := strings.TrimSpace(backupDir); dir != "" {
			expanded, err := config.ExpandPath(dir)
			if err != nil {
				return fmt.Errorf("resolve backup dir: %w", err)
			}
			cfg.Paths.BackupDir = expanded
		}
		logger, err := ctx.logger()
		if err != nil {
			return err
		}
		manager := pipeline.NewManager(cfg, store, version, manifestPath, logger, pipeline.Options{})
		return manager.RunStage(cmd.Context(), stage)
	})
}
