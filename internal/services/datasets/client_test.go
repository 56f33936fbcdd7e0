package datasets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"refbuild/internal/services"
)

func TestFetchArchiveWritesPayload(t *testing.T) {
	payload := []byte("PK\x03\x04 fake zip bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/genome/accession/GCF_000005845.2/download") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Minute)
	dest := filepath.Join(t.TempDir(), "GCF_000005845.2.zip")

	written, err := client.FetchArchive(context.Background(), "GCF_000005845.2", dest)
	if err != nil {
		t.Fatalf("FetchArchive: %v", err)
	}
	if written != int64(len(payload)) {
		t.Fatalf("written = %d, want %d", written, len(payload))
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestFetchArchiveNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Minute)
	dest := filepath.Join(t.TempDir(), "GCF_1.zip")

	_, err := client.FetchArchive(context.Background(), "GCF_1", dest)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if _, statErr := os.Stat(dest); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatal("destination file should not exist after failed fetch")
	}
}

func TestFetchArchiveEmptyPayloadIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Minute)
	dir := t.TempDir()
	dest := filepath.Join(dir, "GCF_1.zip")

	_, err := client.FetchArchive(context.Background(), "GCF_1", dest)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error for empty payload, got %v", err)
	}

	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("partial files left behind: %v", entries)
	}
}

func TestFetchArchiveHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, time.Minute)
	_, err := client.FetchArchive(ctx, "GCF_1", filepath.Join(t.TempDir(), "GCF_1.zip"))
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestArchiveURLEscapesAccession(t *testing.T) {
	client := NewClient("https://example.org/api/", time.Minute)
	got := client.ArchiveURL("GCF 1")
	if got != "https://example.org/api/genome/accession/GCF%201/download?include_annotation_type=GENOME_FASTA" {
		t.Fatalf("ArchiveURL = %q", got)
	}
}
