package schema

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/fixtura/fixtura"
)

// Watch reloads an exported definition file whenever it changes on disk
// and calls fn with the freshly decoded definition. The initial load is
// delivered before Watch starts waiting for events. Watch blocks until the
// context is canceled or the watcher fails; decode errors on a rewrite are
// reported through fn's error return and stop the watch.
func Watch(ctx context.Context, path string, fn func(*Definition) error) error {
	load := func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fixtura.NewSchemaErrorWrap(err, "read definition %q", path)
		}
		def, err := Unmarshal(data)
		if err != nil {
			return err
		}
		return fn(def)
	}
	if err := load(); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fixtura.NewSchemaErrorWrap(err, "watch definition %q", path)
	}
	defer watcher.Close()
	// Watch the directory: editors often replace the file on save, which
	// drops a watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fixtura.NewSchemaErrorWrap(err, "watch definition %q", path)
	}
	name := filepath.Base(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			if err := load(); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fixtura.NewSchemaErrorWrap(err, "watch definition %q", path)
		}
	}
}
