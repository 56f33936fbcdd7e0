package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppendAndReadReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed_download.txt")
	for _, acc := range []string{"GCF_000005845.2", "GCF_000001405.40"} {
		if err := AppendEntry(path, acc); err != nil {
			t.Fatalf("AppendEntry: %v", err)
		}
	}

	got, err := ReadReport(path)
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if len(got) != 2 || got[0] != "GCF_000005845.2" || got[1] != "GCF_000001405.40" {
		t.Fatalf("entries = %v", got)
	}
}

func TestAppendEntryReportsOpenFailure(t *testing.T) {
	if err := AppendEntry(t.TempDir(), "GCF_1"); err == nil {
		t.Fatal("expected error when the report path is a directory")
	}
}

func TestReadReportMissingIsEmpty(t *testing.T) {
	got, err := ReadReport(filepath.Join(t.TempDir(), "absent.txt"))
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("entries = %v, want none", got)
	}
}

func TestReadReportNormalizesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty_list.txt")
	content := "genomes/GCF_000005845.2.fna\nGCF_000001405.40.zip\n  GCF_009858895.2  \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadReport(path)
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	want := []string{"GCF_000005845.2", "GCF_000001405.40", "GCF_009858895.2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entries = %v, want %v", got, want)
		}
	}
}

func TestMergeDeduplicatesAndSorts(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	dst := filepath.Join(dir, "missing_fna.txt")

	if err := os.WriteFile(a, []byte("GCF_2\nGCF_1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("GCF_1\nGCF_3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Merge(dst, a, b, filepath.Join(dir, "absent.txt")); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "GCF_1\nGCF_2\nGCF_3\n" {
		t.Fatalf("merged = %q", data)
	}
}

func TestNormalizeAccession(t *testing.T) {
	cases := map[string]string{
		"genomes/GCF_1.fna": "GCF_1",
		"GCF_1.zip":         "GCF_1",
		"  GCF_1  ":         "GCF_1",
		"":                  "",
		"GCF_000001405.40":  "GCF_000001405.40",
	}
	for in, want := range cases {
		if got := NormalizeAccession(in); got != want {
			t.Fatalf("NormalizeAccession(%q) = %q, want %q", in, got, want)
		}
	}
}
