// Package memory is the default settings.Store: it keeps the last snapshot
// in process memory, so a restart goes back to the configured defaults.
package memory

import (
	"context"
	"sync"

	"github.com/marmos91/sensord/pkg/sensor"
)

type MemorySettingsStore struct {
	mu    sync.Mutex
	saved *sensor.Settings
}

func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{}
}

func (m *MemorySettingsStore) Load(ctx context.Context) (sensor.Settings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saved == nil {
		return sensor.Settings{}, false, nil
	}
	return *m.saved, true, nil
}

func (m *MemorySettingsStore) Save(ctx context.Context, s sensor.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saved = &s
	return nil
}

func (m *MemorySettingsStore) Close() error {
	return nil
}
