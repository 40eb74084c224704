package statsd

import (
	"maps"
	"sync"
	"time"
)

// Sample is one metric observation captured by Memory.
type Sample struct {
	Kind  string // "count", "gauge" or "timing"
	Name  string
	Value float64
	Tags  map[string]string
}

// Memory is an in-process Sink that records every observation. Tests use it to
// assert on emitted metrics.
type Memory struct {
	mu      sync.Mutex
	samples []Sample
}

var _ Sink = (*Memory)(nil)

func (m *Memory) add(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
}

func (m *Memory) Count(name string, value int64, tags map[string]string) {
	m.add(Sample{Kind: "count", Name: name, Value: float64(value), Tags: maps.Clone(tags)})
}

func (m *Memory) Gauge(name string, value float64, tags map[string]string) {
	m.add(Sample{Kind: "gauge", Name: name, Value: value, Tags: maps.Clone(tags)})
}

func (m *Memory) Timing(name string, value time.Duration, tags map[string]string) {
	m.add(Sample{Kind: "timing", Name: name, Value: float64(value), Tags: maps.Clone(tags)})
}

// Samples returns a copy of everything recorded so far.
func (m *Memory) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sample(nil), m.samples...)
}

// CountTotal sums counters with the given name whose tags include every pair in match.
func (m *Memory) CountTotal(name string, match map[string]string) int64 {
	var total int64
	for _, s := range m.Samples() {
		if s.Kind != "count" || s.Name != name {
			continue
		}
		ok := true
		for k, v := range match {
			if s.Tags[k] != v {
				ok = false
				break
			}
		}
		if ok {
			total += int64(s.Value)
		}
	}
	return total
}
