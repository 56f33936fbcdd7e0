package testsupport

import (
	"context"
	"testing"

	"refbuild/internal/config"
	"refbuild/internal/tracker"
)

// MustOpenStore opens a tracker.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *tracker.Store {
	t.Helper()

	store, err := tracker.Open(cfg)
	if err != nil {
		t.Fatalf("open tracker store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// SeedAccessions tracks the provided accessions as pending.
func SeedAccessions(t testing.TB, store *tracker.Store, accessions ...string) {
	t.Helper()

	if err := store.EnsureAccessions(context.Background(), accessions); err != nil {
		t.Fatalf("seed accessions: %v", err)
	}
}
