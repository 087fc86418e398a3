package metrics

import (
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Backend that keeps totals. It backs the "memory"
// metrics backend used for local runs and tests.
type Memory struct {
	mu       sync.Mutex
	counters map[string]float64
	samples  map[string][]float64
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{
		counters: make(map[string]float64),
		samples:  make(map[string][]float64),
	}
}

// IncCounter implements Backend.
func (m *Memory) IncCounter(name string, delta float64, labels Labels) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[seriesKey(name, labels)] += delta
}

// ObserveHistogram implements Backend.
func (m *Memory) ObserveHistogram(name string, value float64, labels Labels) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := seriesKey(name, labels)
	m.samples[k] = append(m.samples[k], value)
}

// Counter returns the total of name across every label set that contains
// all of match.
func (m *Memory) Counter(name string, match Labels) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total float64
	for k, v := range m.counters {
		if matches(k, name, match) {
			total += v
		}
	}
	return total
}

// Samples returns how many histogram observations of name match.
func (m *Memory) Samples(name string, match Labels) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for k, v := range m.samples {
		if matches(k, name, match) {
			n += len(v)
		}
	}
	return n
}

// seriesKey renders name{k=v,...} with sorted label keys.
func seriesKey(name string, labels Labels) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

func matches(key, name string, match Labels) bool {
	if !strings.HasPrefix(key, name+"{") {
		return false
	}
	for k, v := range match {
		if !strings.Contains(key, k+"="+v+",") && !strings.Contains(key, k+"="+v+"}") {
			return false
		}
	}
	return true
}
