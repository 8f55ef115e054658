// internal/poller/mailbox.go
package poller

import "sync"

// Mailbox is a single-slot hand-off of the next command to send.
// Put overwrites anything not yet taken: the most recent command wins.
type Mailbox struct {
	mu   sync.Mutex
	next []byte
	ok   bool
}

// Put replaces the pending command.
func (m *Mailbox) Put(cmd []byte) {
	c := append([]byte(nil), cmd...)

	m.mu.Lock()
	m.next, m.ok = c, true
	m.mu.Unlock()
}

// Take retrieves and clears the pending command.
func (m *Mailbox) Take() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd, ok := m.next, m.ok
	m.next, m.ok = nil, false
	return cmd, ok
}
