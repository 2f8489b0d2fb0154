package main

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	ferrors "github.com/orizon-lang/flowc/internal/errors"
)

// watch compiles every input, then recompiles each one whenever it is
// written or recreated, until ctx is cancelled. Compile failures are
// logged and do not stop the watcher.
func (d *driver) watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return ferrors.Wrapf(err, "start watcher")
	}
	defer w.Close()

	// Editors often replace files, so watch directories, not files.
	watched := make(map[string]string, len(d.opts.inputs))
	dirs := map[string]bool{}

	for _, in := range d.opts.inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return ferrors.Wrapf(err, "%s", in)
		}

		watched[abs] = in

		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}

		if err := w.Add(dir); err != nil {
			return ferrors.Wrapf(err, "watch %s", dir)
		}

		dirs[dir] = true
	}

	for _, in := range d.opts.inputs {
		d.rebuild(ctx, in)
	}

	d.log.Info("watching %d files", len(watched))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}

			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}

			if in, ok := watched[abs]; ok {
				d.log.Debug("%s changed", in)
				d.rebuild(ctx, in)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}

			d.log.Warn("watcher: %v", err)
		}
	}
}

func (d *driver) rebuild(ctx context.Context, path string) {
	r, err := d.compileFile(ctx, path)
	if err == nil {
		err = d.emit(r)
	}

	if err != nil {
		d.report(err)
	}
}
