package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"refbuild/internal/config"
	"refbuild/internal/pipeline"
	"refbuild/internal/stage"
	"refbuild/internal/tracker"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var failedOnly bool
	var versionFlag string
	var manifestFlag string
	var healthFlag bool
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tracker state for the current working directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *tracker.Store) error {
				out := cmd.OutOrStdout()

				if version := resolveVersion(versionFlag); version != "" {
					printArtifactStatus(out, cfg, version)
				}

				if healthFlag {
					manager := pipeline.NewManager(cfg, store, resolveVersion(versionFlag), manifestFlag, nil, pipeline.Options{})
					printStageHealth(out, manager.Health(cmd.Context()))
				}

				run, err := store.LatestRun(cmd.Context())
				if err != nil {
					return err
				}
				if run != nil {
					outcome := run.Outcome
					if outcome == "" {
						outcome = "in progress"
					}
					fmt.Fprintf(out, "Last run: %s (version %s, started %s)\n",
						outcome, run.Version, run.StartedAt.Local().Format(time.RFC1123))
				} else {
					fmt.Fprintln(out, "No runs recorded")
				}

				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				total := 0
				for _, count := range stats {
					total += count
				}
				fmt.Fprintf(out, "Accessions tracked: %d\n\n", total)

				var filter []tracker.Status
				if failedOnly {
					filter = []tracker.Status{
						tracker.StatusFailed,
						tracker.StatusExtractFailed,
						tracker.StatusEmpty,
					}
				}
				if statusFlag != "" {
					status, ok := tracker.ParseStatus(statusFlag)
					if !ok {
						return fmt.Errorf("unknown status %q (known: %s)", statusFlag, knownStatusList())
					}
					filter = append(filter, status)
				}
				records, err := store.List(cmd.Context(), filter...)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(out, "Nothing to show")
					return nil
				}

				rows := make([][]string, 0, len(records))
				for _, record := range records {
					var detail string
					switch {
					case record.ErrorMessage != "":
						detail = record.ErrorMessage
					case record.HasArchive():
						detail = fmt.Sprintf("archive %d bytes", record.ArchiveBytes)
					}
					rows = append(rows, []string{
						record.Accession,
						string(record.Status),
						record.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
						detail,
					})
				}
				headers := []string{"Accession", "Status", "Updated", "Detail"}
				if stdoutIsTerminal() {
					fmt.Fprintln(out, renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft}))
				} else {
					renderPlain(out, headers, rows)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Show only accessions in a failure state")
	cmd.Flags().StringVarP(&versionFlag, "version", "v", "", "Report artifact state for this version tag")
	cmd.Flags().BoolVar(&healthFlag, "health", false, "Report per-stage readiness checks")
	cmd.Flags().StringVarP(&manifestFlag, "manifest", "m", "", "Path to the accession manifest, used by the download readiness check")
	cmd.Flags().StringVar(&statusFlag, "status", "", "Show only accessions in this status")
	return cmd
}

func knownStatusList() string {
	statuses := tracker.AllStatuses()
	names := make([]string, len(statuses))
	for i, status := range statuses {
		names[i] = string(status)
	}
	return strings.Join(names, ", ")
}

func printStageHealth(out io.Writer, checks []stage.Health) {
	fmt.Fprintln(out, "Stage readiness:")
	for _, check := range checks {
		if check.Ready {
			fmt.Fprintf(out, "  %-10s ready\n", check.Name)
			continue
		}
		fmt.Fprintf(out, "  %-10s not ready: %s\n", check.Name, check.Detail)
	}
	fmt.Fprintln(out)
}

func printArtifactStatus(out io.Writer, cfg *config.Config, version string) {
	flat := cfg.ArtifactPath(version)
	compressed := cfg.CompressedArtifactPath(version)
	switch {
	case artifactSize(compressed) > 0:
		fmt.Fprintf(out, "Database %s: compressed (%d bytes)\n", version, artifactSize(compressed))
	case artifactSize(flat) > 0:
		fmt.Fprintf(out, "Database %s: assembled, not compressed (%d bytes)\n", version, artifactSize(flat))
	default:
		fmt.Fprintf(out, "Database %s: not assembled\n", version)
	}
}

func artifactSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func renderPlain(out io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	printRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				fmt.Fprint(out, "  ")
			}
			fmt.Fprintf(out, "%-*s", widths[i], cell)
		}
		fmt.Fprintln(out)
	}
	printRow(headers)
	for _, row := range rows {
		printRow(row)
	}
}

func stdoutIsTerminal() bool {
	return fileIsTerminal(os.Stdout)
}
