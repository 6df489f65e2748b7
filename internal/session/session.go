// Package session tracks the authenticated user on the device.
package session

import "sync"

// Manager holds the current user session. The sync engine gates every pass on
// it, and the agent ties the scheduler lifecycle to Begin/End so no timers
// leak across logins.
type Manager struct {
	mu     sync.Mutex
	userID string
	token  string
}

// NewManager returns an empty (logged-out) manager.
func NewManager() *Manager {
	return &Manager{}
}

// Begin records a new authenticated session.
func (m *Manager) Begin(userID, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userID = userID
	m.token = token
}

// End clears the session.
func (m *Manager) End() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userID = ""
	m.token = ""
}

// UserID returns the current user and whether a session is active.
func (m *Manager) UserID() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID, m.userID != ""
}

// Token returns the bearer token for the current session.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}
