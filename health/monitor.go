package health

import (
	"sync"
	"time"
)

// Reporter is implemented by components that can snapshot their own health.
type Reporter interface {
	Health() Status
}

// Monitor tracks health of multiple components in a thread-safe manner.
// Components either push statuses via Update or register a Reporter that is
// polled when an aggregate is requested.
type Monitor struct {
	mu        sync.RWMutex
	statuses  map[string]Status
	reporters map[string]Reporter
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses:  make(map[string]Status),
		reporters: make(map[string]Reporter),
	}
}

// Register adds a polled health reporter for a named component
func (m *Monitor) Register(name string, r Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporters[name] = r
}

// Update updates the pushed health status for a named component
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.statuses[name] = status
}

// Get retrieves the pushed health status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, exists := m.statuses[name]
	return status, exists
}

// Remove removes a component from monitoring
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
	delete(m.reporters, name)
}

// AggregateHealth polls registered reporters, merges pushed statuses and
// returns an aggregated health status for the entire system
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	subStatuses := make([]Status, 0, len(m.statuses)+len(m.reporters))
	for _, status := range m.statuses {
		subStatuses = append(subStatuses, status)
	}
	reporters := make(map[string]Reporter, len(m.reporters))
	for name, r := range m.reporters {
		reporters[name] = r
	}
	m.mu.RUnlock()

	// Poll outside the lock: a reporter may take its own locks
	for name, r := range reporters {
		status := r.Health()
		status.Component = name
		if status.Timestamp.IsZero() {
			status.Timestamp = time.Now()
		}
		subStatuses = append(subStatuses, status)
	}

	return Aggregate(systemName, subStatuses)
}

// Count returns the number of components being monitored
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.statuses) + len(m.reporters)
}
