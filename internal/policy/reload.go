package policy

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 500 * time.Millisecond

// Reloader watches the policy file and rebuilds the provider's registry
// when it changes.
type Reloader struct {
	watcher  *fsnotify.Watcher
	provider *Provider
	log      zerolog.Logger
	onReload func(*Registry)
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewReloader creates a file watcher for the provider's policy file.
// onReload (optional) runs after every successful rebuild.
func NewReloader(provider *Provider, log zerolog.Logger, onReload func(*Registry)) (*Reloader, error) {
	path := provider.Path()
	if path == "" {
		return nil, fmt.Errorf("policy provider has no file to watch")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot watch %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}

	return &Reloader{
		watcher:  watcher,
		provider: provider,
		log:      log,
		onReload: onReload,
		debounce: reloadDebounce,
	}, nil
}

// Run watches for file changes and reloads policy. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			r.stopTimer()
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				r.schedule()
			}
			// editors that replace the file drop the watch; re-add it
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if err := r.watcher.Add(event.Name); err == nil {
					r.schedule()
				}
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn().Err(err).Msg("policy watcher error")
		}
	}
}

func (r *Reloader) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, r.reload)
}

func (r *Reloader) stopTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
}

func (r *Reloader) reload() {
	reg, err := r.provider.Reload()
	if err != nil {
		r.log.Error().Err(err).Msg("policy hot-reload failed")
		return
	}
	for _, key := range reg.Unresolved() {
		r.log.Warn().Str("namespace", key).Msg("unknown namespace in policy, entry ignored")
	}
	r.log.Info().Str("policy_hash", reg.Hash()).Msg("policy reloaded")
	if r.onReload != nil {
		r.onReload(reg)
	}
}
