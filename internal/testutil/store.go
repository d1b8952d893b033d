package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/viktorkelemen/sc-repl-mcp/internal/refstore"
)

// NewRefStore opens a reference store backed by a per-test temp file.
func NewRefStore(t *testing.T) (*refstore.Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := refstore.Open(ctx, filepath.Join(t.TempDir(), "refs-test.db"))
	if err != nil {
		t.Fatalf("open test refstore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store, ctx
}
