package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"refbuild/internal/fileutil"
)

// AppendEntry appends one accession to a report file, creating it on first
// use. Reports are append-only: entries are written once per failure and
// never rewritten.
func AppendEntry(path, accession string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open report %s: %w", path, err)
	}
	if _, err := fmt.Fprintln(file, accession); err != nil {
		file.Close()
		return fmt.Errorf("append to report %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close report %s: %w", path, err)
	}
	return nil
}

// ReadReport returns the accessions recorded in a report file, normalized to
// bare accession form (any directory prefix and extension stripped). A
// missing report reads as empty.
func ReadReport(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open report %s: %w", path, err)
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		entry := NormalizeAccession(scanner.Text())
		if entry == "" {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	return entries, nil
}

// Merge combines the entries of the source reports into dst, deduplicated
// and sorted, replacing any previous dst content atomically. Missing sources
// contribute nothing.
func Merge(dst string, sources ...string) error {
	seen := make(map[string]struct{})
	var merged []string
	for _, src := range sources {
		entries, err := ReadReport(src)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if _, ok := seen[entry]; ok {
				continue
			}
			seen[entry] = struct{}{}
			merged = append(merged, entry)
		}
	}
	sort.Strings(merged)

	var builder strings.Builder
	for _, entry := range merged {
		builder.WriteString(entry)
		builder.WriteByte('\n')
	}
	return fileutil.WriteFileAtomic(dst, []byte(builder.String()), 0o644)
}

// NormalizeAccession strips any directory prefix and a trailing .fna/.zip
// extension, returning the bare accession. Quarantine entries are recorded
// in this form regardless of how the path was spelled.
func NormalizeAccession(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	base := filepath.Base(trimmed)
	for _, ext := range []string{".fna", ".zip"} {
		if strings.HasSuffix(base, ext) {
			base = strings.TrimSuffix(base, ext)
			break
		}
	}
	return base
}
