package schema_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixtura/fixtura/schema"
)

func writeDefinition(t *testing.T, path string, def *schema.Definition) {
	t.Helper()
	data, err := schema.Marshal(def)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestWatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "schema.yaml")
	writeDefinition(t, path, testDefinition())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	loads := make(chan *schema.Definition, 4)
	done := make(chan error, 1)
	go func() {
		done <- schema.Watch(ctx, path, func(def *schema.Definition) error {
			loads <- def
			return nil
		})
	}()

	// The initial load is delivered before any file change.
	select {
	case def := <-loads:
		assert.NotNil(t, def.Table("users"))
	case <-ctx.Done():
		t.Fatal("timed out waiting for initial load")
	}

	// A rewrite triggers a reload with the new content.
	updated := testDefinition()
	updated.AddTable(&schema.Table{
		Name:   "comments",
		Fields: []*schema.Field{{Name: "id", Type: schema.TypeInteger, Primary: true}},
	})
	writeDefinition(t, path, updated)

	select {
	case def := <-loads:
		assert.NotNil(t, def.Table("comments"))
	case <-ctx.Done():
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestWatchMissingFile(t *testing.T) {
	t.Parallel()

	err := schema.Watch(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), func(*schema.Definition) error {
		t.Fatal("callback must not run")
		return nil
	})
	require.Error(t, err)
}
