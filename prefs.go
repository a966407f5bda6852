package askrouter

import "sync"

// Preferences stores each user's preferred provider account. The preferred
// account is tried first; failover order is unchanged otherwise.
type Preferences struct {
	mu     sync.RWMutex
	byUser map[string]string
}

// NewPreferences creates an empty preference registry.
func NewPreferences() *Preferences {
	return &Preferences{byUser: make(map[string]string)}
}

// Set records the preferred provider account for a user.
func (p *Preferences) Set(userID, providerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byUser[userID] = providerID
}

// Get returns the user's preferred account, or empty for the default order.
func (p *Preferences) Get(userID string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byUser[userID]
}

// Clear removes the user's preference.
func (p *Preferences) Clear(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byUser, userID)
}
