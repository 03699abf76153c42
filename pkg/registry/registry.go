package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/sensord/pkg/auth"
	"github.com/marmos91/sensord/pkg/datastore"
	"github.com/marmos91/sensord/pkg/settings"
)

// Registry holds the process-wide resources shared by every adapter and
// background service: the user table, the live sensor settings and the
// measurement data store.
//
// It also tracks active client sessions. Session information is ephemeral
// and kept in memory only.
//
// Example usage:
//
//	reg, err := registry.NewRegistry(users, state, data)
//	adapter.SetRegistry(reg)
type Registry struct {
	users    *auth.Table
	settings *settings.State
	data     *datastore.Store

	mu       sync.RWMutex
	sessions map[string]*SessionInfo // key: session id
}

// SessionInfo describes one authenticated connection.
type SessionInfo struct {
	ID          string
	ClientAddr  string
	Username    string
	Group       auth.Group
	ConnectedAt time.Time
}

// NewRegistry wires the shared resources together. All three are required.
func NewRegistry(users *auth.Table, state *settings.State, data *datastore.Store) (*Registry, error) {
	if users == nil {
		return nil, fmt.Errorf("cannot create registry without a user table")
	}
	if state == nil {
		return nil, fmt.Errorf("cannot create registry without sensor settings")
	}
	if data == nil {
		return nil, fmt.Errorf("cannot create registry without a data store")
	}

	return &Registry{
		users:    users,
		settings: state,
		data:     data,
		sessions: make(map[string]*SessionInfo),
	}, nil
}

// Users returns the user table.
func (r *Registry) Users() *auth.Table {
	return r.users
}

// Settings returns the shared configuration state.
func (r *Registry) Settings() *settings.State {
	return r.settings
}

// Data returns the measurement data store.
func (r *Registry) Data() *datastore.Store {
	return r.data
}

// Healthy reports whether the data store's directory is still reachable.
// The measurement loop cannot persist samples without it.
func (r *Registry) Healthy() error {
	dir := filepath.Dir(r.data.Path())
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %s is not a directory", dir)
	}
	return nil
}

// ============================================================================
// Session Tracking
// ============================================================================

// RecordSession registers an authenticated session.
func (r *Registry) RecordSession(info SessionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[info.ID] = &info
}

// RemoveSession removes a session record.
// Returns true if a session was removed, false if none existed.
func (r *Registry) RemoveSession(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		delete(r.sessions, id)
		return true
	}
	return false
}

// ListSessions returns copies of all active sessions, oldest first.
func (r *Registry) ListSessions() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, *s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ConnectedAt.Before(sessions[j].ConnectedAt)
	})
	return sessions
}

// CountSessions returns the number of active sessions.
func (r *Registry) CountSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
