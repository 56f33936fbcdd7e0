package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"refbuild/internal/fileutil"
	"refbuild/internal/logging"
	"refbuild/internal/manifest"
	"refbuild/internal/retry"
	"refbuild/internal/testsupport"
	"refbuild/internal/tracker"
)

type fakeFetcher struct {
	payloads map[string][]byte
	errs     map[string]error
	calls    []string
}

func (f *fakeFetcher) FetchArchive(_ context.Context, accession, destPath string) (int64, error) {
	f.calls = append(f.calls, accession)
	if err, ok := f.errs[accession]; ok {
		return 0, err
	}
	payload, ok := f.payloads[accession]
	if !ok {
		return 0, fmt.Errorf("no payload for %s", accession)
	}
	if err := os.WriteFile(destPath, payload, 0o644); err != nil {
		return 0, err
	}
	return int64(len(payload)), nil
}

func quickPolicy(slept *[]time.Duration) retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Backoff:     retry.ExponentialBackoff(50 * time.Second),
		Sleep: func(_ context.Context, d time.Duration) error {
			if slept != nil {
				*slept = append(*slept, d)
			}
			return nil
		},
	}
}

func runStage(t *testing.T, d *Downloader) {
	t.Helper()
	ctx := context.Background()
	if err := d.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := d.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestDownloadsMissingArchives(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manifestPath := filepath.Join(t.TempDir(), "accessions.tsv")
	testsupport.WriteManifest(t, manifestPath, "GCF_1", "GCF_2")

	fetcher := &fakeFetcher{payloads: map[string][]byte{
		"GCF_1": []byte("archive one"),
		"GCF_2": []byte("archive two"),
	}}
	d := New(cfg, store, fetcher, quickPolicy(nil), nil, manifestPath)
	runStage(t, d)

	for _, accession := range []string{"GCF_1", "GCF_2"} {
		if !fileutil.NonEmptyFile(cfg.ArchivePath(accession)) {
			t.Fatalf("archive for %s missing", accession)
		}
		record, err := store.Get(context.Background(), accession)
		if err != nil {
			t.Fatal(err)
		}
		if record.Status != tracker.StatusDownloaded {
			t.Fatalf("%s status = %s, want downloaded", accession, record.Status)
		}
	}
	if len(fetcher.calls) != 2 {
		t.Fatalf("fetch calls = %v, want 2", fetcher.calls)
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manifestPath := filepath.Join(t.TempDir(), "accessions.tsv")
	testsupport.WriteManifest(t, manifestPath, "GCF_1")

	fetcher := &fakeFetcher{payloads: map[string][]byte{"GCF_1": []byte("archive one")}}
	d := New(cfg, store, fetcher, quickPolicy(nil), nil, manifestPath)
	runStage(t, d)

	before, err := os.ReadFile(cfg.ArchivePath("GCF_1"))
	if err != nil {
		t.Fatal(err)
	}

	second := New(cfg, store, fetcher, quickPolicy(nil), nil, manifestPath)
	runStage(t, second)

	if len(fetcher.calls) != 1 {
		t.Fatalf("second run issued network calls: %v", fetcher.calls)
	}
	after, err := os.ReadFile(cfg.ArchivePath("GCF_1"))
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatal("archive changed across idempotent reruns")
	}

	record, err := store.Get(context.Background(), "GCF_1")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != tracker.StatusCached {
		t.Fatalf("status = %s, want cached", record.Status)
	}
}

func TestRestoresFromBackup(t *testing.T) {
	backupDir := t.TempDir()
	cfg := testsupport.NewConfig(t, testsupport.WithBackupDir(backupDir))
	store := testsupport.MustOpenStore(t, cfg)
	manifestPath := filepath.Join(t.TempDir(), "accessions.tsv")
	testsupport.WriteManifest(t, manifestPath, "GCF_1")

	testsupport.WriteFile(t, filepath.Join(backupDir, "GCF_1.zip"), 2048)

	fetcher := &fakeFetcher{}
	d := New(cfg, store, fetcher, quickPolicy(nil), nil, manifestPath)
	runStage(t, d)

	if len(fetcher.calls) != 0 {
		t.Fatalf("backup restore should not hit the network: %v", fetcher.calls)
	}
	if got := fileutil.FileSize(cfg.ArchivePath("GCF_1")); got != 2048 {
		t.Fatalf("restored archive size = %d, want 2048", got)
	}
	record, err := store.Get(context.Background(), "GCF_1")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != tracker.StatusRestoredFromBackup {
		t.Fatalf("status = %s, want restored_from_backup", record.Status)
	}
}

func TestExhaustionRecordsFailureAndContinues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manifestPath := filepath.Join(t.TempDir(), "accessions.tsv")
	testsupport.WriteManifest(t, manifestPath, "GCF_1", "GCF_2")

	// GCF_1's archive pre-exists locally; GCF_2 fails all attempts.
	testsupport.WriteFile(t, cfg.ArchivePath("GCF_1"), 512)

	var slept []time.Duration
	fetcher := &fakeFetcher{errs: map[string]error{"GCF_2": errors.New("endpoint unavailable")}}
	d := New(cfg, store, fetcher, quickPolicy(&slept), nil, manifestPath)
	runStage(t, d)

	if len(fetcher.calls) != 3 {
		t.Fatalf("fetch calls = %d, want 3 attempts for GCF_2", len(fetcher.calls))
	}
	if len(slept) != 2 || slept[0] != 100*time.Second || slept[1] != 200*time.Second {
		t.Fatalf("backoff schedule = %v, want [100s 200s]", slept)
	}

	ctx := context.Background()
	cached, err := store.Get(ctx, "GCF_1")
	if err != nil {
		t.Fatal(err)
	}
	if cached.Status != tracker.StatusCached {
		t.Fatalf("GCF_1 status = %s, want cached", cached.Status)
	}
	failed, err := store.Get(ctx, "GCF_2")
	if err != nil {
		t.Fatal(err)
	}
	if failed.Status != tracker.StatusFailed {
		t.Fatalf("GCF_2 status = %s, want failed", failed.Status)
	}

	failures, err := manifest.ReadReport(cfg.DownloadFailuresPath())
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 1 || failures[0] != "GCF_2" {
		t.Fatalf("failure manifest = %v, want [GCF_2]", failures)
	}
}

func TestTruncatedArchiveIsRefetched(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manifestPath := filepath.Join(t.TempDir(), "accessions.tsv")
	testsupport.WriteManifest(t, manifestPath, "GCF_1")

	testsupport.SeedAccessions(t, store, "GCF_1")
	ctx := context.Background()
	if err := store.RecordArchive(ctx, "GCF_1", tracker.StatusDownloaded, 4096); err != nil {
		t.Fatal(err)
	}
	// Leftover from an interrupted transfer: non-empty but short.
	testsupport.WriteFile(t, cfg.ArchivePath("GCF_1"), 100)

	fetcher := &fakeFetcher{payloads: map[string][]byte{"GCF_1": []byte("complete archive payload")}}
	d := New(cfg, store, fetcher, quickPolicy(nil), nil, manifestPath)
	runStage(t, d)

	if len(fetcher.calls) != 1 {
		t.Fatalf("fetch calls = %v, want refetch", fetcher.calls)
	}
	record, err := store.Get(ctx, "GCF_1")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != tracker.StatusDownloaded {
		t.Fatalf("status = %s, want downloaded", record.Status)
	}
	if record.ArchiveBytes != int64(len("complete archive payload")) {
		t.Fatalf("recorded size = %d", record.ArchiveBytes)
	}
}

func TestStatusPartitionCoversManifest(t *testing.T) {
	backupDir := t.TempDir()
	cfg := testsupport.NewConfig(t, testsupport.WithBackupDir(backupDir))
	store := testsupport.MustOpenStore(t, cfg)
	manifestPath := filepath.Join(t.TempDir(), "accessions.tsv")
	testsupport.WriteManifest(t, manifestPath, "GCF_1", "GCF_2", "GCF_3", "GCF_4")

	testsupport.WriteFile(t, cfg.ArchivePath("GCF_1"), 512)
	testsupport.WriteFile(t, filepath.Join(backupDir, "GCF_2.zip"), 512)

	fetcher := &fakeFetcher{
		payloads: map[string][]byte{"GCF_3": []byte("payload")},
		errs:     map[string]error{"GCF_4": errors.New("gone")},
	}
	d := New(cfg, store, fetcher, quickPolicy(nil), nil, manifestPath)
	runStage(t, d)

	want := map[string]tracker.Status{
		"GCF_1": tracker.StatusCached,
		"GCF_2": tracker.StatusRestoredFromBackup,
		"GCF_3": tracker.StatusDownloaded,
		"GCF_4": tracker.StatusFailed,
	}
	for accession, wantStatus := range want {
		record, err := store.Get(context.Background(), accession)
		if err != nil {
			t.Fatal(err)
		}
		if record == nil || record.Status != wantStatus {
			t.Fatalf("%s = %+v, want %s", accession, record, wantStatus)
		}
	}
}

func TestPrepareFailsWithoutManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	d := New(cfg, store, &fakeFetcher{}, quickPolicy(nil), nil, filepath.Join(t.TempDir(), "missing.tsv"))
	if err := d.Prepare(context.Background()); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestLogRecordsCarryAccession(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manifestPath := filepath.Join(t.TempDir(), "accessions.tsv")
	testsupport.WriteManifest(t, manifestPath, "GCF_1", "GCF_2")

	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	fetcher := &fakeFetcher{
		payloads: map[string][]byte{"GCF_1": []byte("archive one")},
		errs:     map[string]error{"GCF_2": errors.New("connection reset")},
	}
	d := New(cfg, store, fetcher, quickPolicy(nil), logger, manifestPath)
	runStage(t, d)

	out := buf.String()
	for line, accession := range map[string]string{
		"archive downloaded":                 "GCF_1",
		"accession failed, continuing batch": "GCF_2",
	} {
		record := ""
		for _, candidate := range strings.Split(out, "\n") {
			if strings.Contains(candidate, line) {
				record = candidate
				break
			}
		}
		if record == "" {
			t.Fatalf("no %q record in log output:\n%s", line, out)
		}
		if !strings.Contains(record, fmt.Sprintf("%q:%q", logging.FieldAccession, accession)) {
			t.Fatalf("record %q missing accession %s", record, accession)
		}
	}
}
