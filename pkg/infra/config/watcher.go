// Package config provides configuration hot reload on top of viper.
package config

import (
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"
	"github.com/spf13/viper"
)

// ChangeHandler is invoked with the reloaded viper instance after the
// configuration file changes.
type ChangeHandler func(v *viper.Viper) error

// Watcher fans configuration file changes out to subscribed handlers.
type Watcher struct {
	viper    *viper.Viper
	mu       sync.RWMutex
	handlers map[string]ChangeHandler
	watching bool
}

// NewWatcher creates a watcher. v must already have read a configuration file.
func NewWatcher(v *viper.Viper) *Watcher {
	return &Watcher{
		viper:    v,
		handlers: make(map[string]ChangeHandler),
	}
}

// Subscribe registers handler under id, replacing any previous one.
func (w *Watcher) Subscribe(id string, handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[id] = handler
	logger.Debugw("config watcher: handler subscribed", "id", id)
}

// Unsubscribe removes the handler registered under id.
func (w *Watcher) Unsubscribe(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.handlers, id)
}

// Start begins watching the configuration file. It returns false when no
// configuration file was loaded. Calling Start more than once is a no-op.
func (w *Watcher) Start() bool {
	if w.viper.ConfigFileUsed() == "" {
		return false
	}

	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return true
	}
	w.watching = true
	w.mu.Unlock()

	w.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		logger.Infow("config file changed", "file", e.Name, "op", e.Op.String())
		w.Notify()
	})
	w.viper.WatchConfig()

	logger.Infow("config watcher started", "file", w.viper.ConfigFileUsed())
	return true
}

// Notify runs every handler in id order. A failing handler is logged and
// does not stop the others.
func (w *Watcher) Notify() {
	w.mu.RLock()
	ids := make([]string, 0, len(w.handlers))
	for id := range w.handlers {
		ids = append(ids, id)
	}
	handlers := make(map[string]ChangeHandler, len(w.handlers))
	for id, h := range w.handlers {
		handlers[id] = h
	}
	w.mu.RUnlock()

	sort.Strings(ids)
	for _, id := range ids {
		if err := handlers[id](w.viper); err != nil {
			logger.Errorw("config watcher: handler failed", "id", id, "error", err.Error())
		}
	}
}

// HandlerCount returns the number of registered handlers.
func (w *Watcher) HandlerCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.handlers)
}
