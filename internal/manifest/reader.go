// Package manifest parses the accession-list input and owns the plain-text
// failure and missing-genome reports the pipeline leaves behind for post-run
// auditing.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"refbuild/internal/logging"
	"refbuild/internal/services"
)

// Read parses a tab-separated accession list: a header row followed by data
// rows whose first column is the accession. Blank or whitespace-only first
// columns are skipped with a warning so trailing blank lines never abort a
// run. A missing file or a file with zero data rows is a configuration
// error.
func Read(path string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrConfiguration, "manifest", "open", fmt.Sprintf("accession list %s does not exist", path), err)
		}
		return nil, services.Wrap(services.ErrConfiguration, "manifest", "open", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var accessions []string
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			// Header row.
			continue
		}
		line := scanner.Text()
		first := line
		if idx := strings.IndexByte(line, '\t'); idx >= 0 {
			first = line[:idx]
		}
		accession := strings.TrimSpace(first)
		if accession == "" {
			if strings.TrimSpace(line) != "" {
				logger.Warn("skipping manifest row with blank accession",
					logging.String(logging.FieldComponent, "manifest"),
					logging.Int("line", lineNo),
				)
			}
			continue
		}
		accessions = append(accessions, accession)
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "manifest", "read", path, err)
	}

	if len(accessions) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "manifest", "read",
			fmt.Sprintf("accession list %s has no data rows", path), nil)
	}
	return accessions, nil
}
