package sync

import (
	stdsync "sync"
)

// ChannelFactory builds a channel for a credential. Indirection keeps the
// manager testable without a live endpoint.
type ChannelFactory func(credential string) *Channel

// Manager owns at most one push channel at a time, bound to the current
// credential. It replaces the module-level socket singleton: the
// application's composition root constructs one Manager and notifies it of
// credential changes (login, logout, switching a managed account). Swapping
// credentials always tears the old channel down before opening a new one;
// connections are never shared across credentials.
type Manager struct {
	factory ChannelFactory

	mu         stdsync.Mutex
	credential string
	channel    *Channel
}

// NewManager creates a connection manager using the given factory
func NewManager(factory ChannelFactory) *Manager {
	return &Manager{factory: factory}
}

// SetCredential reacts to a credential change. An empty credential closes
// the connection and leaves it closed; setting the same credential again
// is a no-op.
func (m *Manager) SetCredential(credential string) {
	m.mu.Lock()
	if credential == m.credential {
		m.mu.Unlock()
		return
	}

	old := m.channel
	m.credential = credential
	m.channel = nil

	// Tear the old channel down before opening the new one; Disconnect
	// cancels any pending reconnect so no orphaned attempt survives a
	// logout or an account switch.
	if old != nil {
		old.Disconnect()
	}
	if credential != "" {
		m.channel = m.factory(credential)
	}
	m.mu.Unlock()
}

// Channel returns the current channel, or nil when no credential is set
func (m *Manager) Channel() *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel
}

// Close tears down the current channel and clears the credential
func (m *Manager) Close() {
	m.SetCredential("")
}
