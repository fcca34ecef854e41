package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"pkt.systems/pslog"
)

const (
	userReloadDebounce = 200 * time.Millisecond
	userReloadInterval = 5 * time.Second
)

// StartUserWatch reloads the users file whenever it changes on disk.
// Changes are picked up from fsnotify events on the file's directory, with
// a slow poll as a fallback for filesystems without inotify. onReload, if
// set, runs after each successful reload.
func StartUserWatch(ctx context.Context, path string, store *UserStore, logger pslog.Logger, onReload func()) error {
	return startUserWatch(ctx, path, store, logger, onReload, userReloadDebounce, userReloadInterval)
}

func startUserWatch(ctx context.Context, path string, store *UserStore, logger pslog.Logger, onReload func(), debounce, interval time.Duration) error {
	if store == nil {
		return fmt.Errorf("user store is nil")
	}
	if path == "" {
		return fmt.Errorf("users file is required")
	}
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	path = filepath.Clean(path)

	r := &userReloader{path: path, store: store, logger: logger, onReload: onReload}
	if data, err := os.ReadFile(path); err == nil {
		r.lastHash = hashBytes(data)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("fsnotify unavailable; polling users file", "err", err)
	} else if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn("cannot watch users directory; polling users file", "err", err)
		_ = watcher.Close()
		watcher = nil
	}

	go r.run(ctx, watcher, debounce, interval)
	return nil
}

type userReloader struct {
	path     string
	store    *UserStore
	logger   pslog.Logger
	onReload func()
	lastHash string
}

func (r *userReloader) run(ctx context.Context, watcher *fsnotify.Watcher, debounce, interval time.Duration) {
	var events chan fsnotify.Event
	var errs chan error
	if watcher != nil {
		defer watcher.Close()
		events = watcher.Events
		errs = watcher.Errors
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	pending := time.NewTimer(debounce)
	if !pending.Stop() {
		<-pending.C
	}
	defer pending.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending.Reset(debounce)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.logger.Debug("users watcher error", "err", err)
		case <-pending.C:
			r.reload()
		case <-ticker.C:
			r.reload()
		}
	}
}

func (r *userReloader) reload() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return
	}
	hash := hashBytes(data)
	if hash == r.lastHash {
		return
	}
	loaded, err := LoadUserStoreFromBytes(data)
	if err != nil {
		r.logger.Warn("failed to parse users file for reload", "err", err)
		return
	}
	r.store.ReplaceUsers(loaded.Users)
	r.lastHash = hash
	r.logger.Info("users reloaded", "path", r.path, "users", r.store.Len())
	if r.onReload != nil {
		r.onReload()
	}
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
