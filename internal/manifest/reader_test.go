package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"refbuild/internal/services"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accessions.tsv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadParsesFirstColumn(t *testing.T) {
	path := writeManifest(t, "assembly_accession\torganism\n"+
		"GCF_000005845.2\tEscherichia coli\n"+
		"GCF_000001405.40\tHomo sapiens\n")

	got, err := Read(path, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []string{"GCF_000005845.2", "GCF_000001405.40"}
	if len(got) != len(want) {
		t.Fatalf("accessions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("accessions[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReadSkipsBlankRows(t *testing.T) {
	path := writeManifest(t, "assembly_accession\n"+
		"GCF_000005845.2\n"+
		"\n"+
		"   \n"+
		"\tno accession column\n"+
		"GCF_000001405.40\n")

	got, err := Read(path, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("accessions = %v, want 2 entries", got)
	}
}

func TestReadHeaderOnlyFails(t *testing.T) {
	path := writeManifest(t, "assembly_accession\torganism\n")
	_, err := Read(path, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestReadMissingFileFails(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.tsv"), nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestReadPreservesOrderAndDuplicates(t *testing.T) {
	path := writeManifest(t, "acc\nB\nA\nB\n")
	got, err := Read(path, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 3 || got[0] != "B" || got[1] != "A" || got[2] != "B" {
		t.Fatalf("accessions = %v, want [B A B]", got)
	}
}
