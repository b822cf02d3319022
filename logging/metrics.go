package logging

import (
	"sync"
	"sync/atomic"
)

// Metrics is the counter registry owned by the router. Counters are created
// on first use and survive for the lifetime of the process.
type Metrics struct {
	mu     sync.RWMutex
	values map[string]*atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{values: make(map[string]*atomic.Uint64)}
}

func (m *Metrics) value(key string) *atomic.Uint64 {
	m.mu.RLock()
	v, ok := m.values[key]
	m.mu.RUnlock()
	if ok {
		return v
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = m.values[key]; ok {
		return v
	}
	v = new(atomic.Uint64)
	m.values[key] = v
	return v
}

func (m *Metrics) TelemetryAdd(key string, delta uint64) {
	if m == nil {
		return
	}
	m.value(key).Add(delta)
}

func (m *Metrics) TelemetryStore(key string, value uint64) {
	if m == nil {
		return
	}
	m.value(key).Store(value)
}

func (m *Metrics) TelemetryValue(key string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	v, ok := m.values[key]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return v.Load()
}

// TelemetrySnapshot copies every tracked value keyed by name.
func (m *Metrics) TelemetrySnapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]uint64, len(m.values))
	for key, v := range m.values {
		out[key] = v.Load()
	}
	return out
}
