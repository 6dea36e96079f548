// Package settings persists the user's routing configuration.
//
// Store loads and saves a config.ProxyConfig as JSON or YAML, chosen by file
// extension. Saves are atomic. Watcher follows the file with fsnotify and
// hands changed content to a Reloader, normally the gateway manager:
//
//	store, _ := settings.NewStore("")
//	w := settings.NewWatcher(store, manager, 0)
//	go w.Watch(ctx)
package settings
