package compress

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"refbuild/internal/services"
	"refbuild/internal/testsupport"
)

func TestCompressesAndRemovesFlatArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	content := bytes.Repeat([]byte(">GCF_1\nACGTACGT\n"), 200)
	if err := os.WriteFile(cfg.ArtifactPath("v3"), content, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	compressor := New(cfg, "v3", nil)
	if err := compressor.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := compressor.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if _, err := os.Stat(cfg.ArtifactPath("v3")); !os.IsNotExist(err) {
		t.Fatalf("flat artifact must be removed, stat err = %v", err)
	}

	file, err := os.Open(cfg.CompressedArtifactPath("v3"))
	if err != nil {
		t.Fatalf("open compressed artifact: %v", err)
	}
	defer file.Close()

	reader, err := gzip.NewReader(file)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer reader.Close()

	restored, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(restored, content) {
		t.Fatal("decompressed content differs from original artifact")
	}
}

func TestAlreadyCompressedIsNoOp(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	testsupport.WriteFile(t, cfg.CompressedArtifactPath("v3"), 128)
	before, err := os.ReadFile(cfg.CompressedArtifactPath("v3"))
	if err != nil {
		t.Fatalf("read compressed artifact: %v", err)
	}

	compressor := New(cfg, "v3", nil)
	if err := compressor.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	after, err := os.ReadFile(cfg.CompressedArtifactPath("v3"))
	if err != nil {
		t.Fatalf("read compressed artifact: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("rerun must not rewrite an existing compressed artifact")
	}
}

func TestMissingArtifactIsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	compressor := New(cfg, "v3", nil)
	err := compressor.Execute(context.Background())
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Execute err = %v, want ErrNotFound", err)
	}
}

func TestRequiresVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	compressor := New(cfg, "", nil)
	err := compressor.Prepare(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("Prepare err = %v, want ErrConfiguration", err)
	}
}
