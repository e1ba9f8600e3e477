package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/knadh/koanf/v2"
)

// Manager merges Sources, in precedence order, into a single Config and
// exposes the merged value. Each call to Initialize replaces the previous
// merge atomically so concurrent Get() readers never see a torn state.
type Manager struct {
	mu  sync.RWMutex
	cfg Config
}

var (
	defaultManager     = &Manager{cfg: Default()}
	defaultManagerOnce sync.Once
)

// Initialize loads each source in order (later sources override earlier
// ones on key conflict) and stores the merged Config on mgr. Pass
// DefaultProvider first, then EnvProvider, then an optional CLIProvider.
func Initialize(ctx context.Context, mgr *Manager, sources ...Source) error {
	k := koanf.New(".")
	for _, src := range sources {
		data, err := src.Load()
		if err != nil {
			return fmt.Errorf("failed to load %s config source: %w", src.Type(), err)
		}
		if err := k.Load(mapProvider(data), nil); err != nil {
			return fmt.Errorf("failed to merge %s config source: %w", src.Type(), err)
		}
	}
	var merged Config
	if err := k.Unmarshal("", &merged); err != nil {
		return fmt.Errorf("failed to unmarshal merged config: %w", err)
	}
	mgr.mu.Lock()
	mgr.cfg = merged
	mgr.mu.Unlock()
	for _, src := range sources {
		src := src
		if err := src.Watch(ctx, func() {}); err != nil {
			return fmt.Errorf("failed to watch %s config source: %w", src.Type(), err)
		}
	}
	return nil
}

// Get returns a copy of the manager's current merged configuration.
func (mgr *Manager) Get() Config {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return mgr.cfg
}

// Default returns the package-wide manager seeded with Default() values,
// used by callers that never invoke Initialize (tests, simple embeds).
func DefaultManager() *Manager {
	return defaultManager
}

// Get returns the process-wide default manager's current configuration.
func Get() Config {
	return defaultManager.Get()
}
