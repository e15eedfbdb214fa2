// Package watcher keeps an index current while a project is edited.
//
// A Watcher reports debounced batches of file events under a root, using
// fsnotify where it works and polling where it does not (network mounts,
// some container volumes). Events are filtered with the same rules the
// indexer uses to discover files, so only paths that would be indexed reach
// the Runner, which turns each batch into one incremental index update.
//
// Usage:
//
//	sc, _ := scanner.New(scanner.Options{Root: root, Extensions: exts})
//	w, err := watcher.New(sc, watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	r := watcher.NewRunner(root, w, builder)
//	return r.Run(ctx)
package watcher
