package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"refbuild/internal/config"
	"refbuild/internal/pipeline"
	"refbuild/internal/tracker"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var manifestFlag string
	var versionFlag string
	var backupDirFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full build pipeline",
		Long:  "Run downloads the manifest's genome archives, extracts and filters the sequences, assembles the versioned database, and compresses it. Stages run in order and the first failure aborts the run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			version := resolveVersion(versionFlag)
			if version == "" {
				return fmt.Errorf("a version tag is required (--version or %s)", config.VersionEnv)
			}
			return ctx.withStore(func(cfg *config.Config, store *tracker.Store) error {
				if backupDir := strings.TrimSpace(backupDirFlag); backupDir != "" {
					expanded, err := config.ExpandPath(backupDir)
					if err != nil {
						return fmt.Errorf("resolve backup dir: %w", err)
					}
					cfg.Paths.BackupDir = expanded
				}
				logger, err := ctx.logger()
				if err != nil {
					return err
				}
				manager := pipeline.NewManager(cfg, store, version, manifestFlag, logger, pipeline.Options{})
				return manager.Run(cmd.Context())
			})
		},
	}

	cmd.Flags().StringVarP(&manifestFlag, "manifest", "m", "", "Path to the accession manifest (TSV)")
	cmd.Flags().StringVarP(&versionFlag, "version", "v", "", "Version tag for the assembled database")
	cmd.Flags().StringVar(&backupDirFlag, "backup-dir", "", "Directory of pre-fetched archives consulted before downloading")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}
