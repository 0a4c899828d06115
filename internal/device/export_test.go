package device

import "time"

// Observe exposes the monitor's transition function to external tests.
func (m *Monitor) Observe(h *Handle, reachable bool) (Transition, bool) {
	return m.observe(h, reachable, time.Now())
}

// Pending returns how many probe loops the next Start launches.
func (m *Monitor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Running reports whether probe loops are active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
