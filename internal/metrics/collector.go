// Package metrics provides in-memory runtime statistics collection for one
// pipeline invocation.
package metrics

import (
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpIngest    = "ingest"
	OpAnalyze   = "analyze"
	OpInference = "inference"
	OpNotify    = "notify"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token metrics (only for inference operations)
	TotalPromptTokens     int64
	TotalCompletionTokens int64
}

// Snapshot is the full picture at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Ops           map[string]OperationMetrics
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.Mutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{}
		c.ops[op] = m
	}
	return m
}

// Record adds one timed operation.
func (c *Collector) Record(op string, d time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	if failed {
		m.Failures++
	}
	m.TotalTime += d
	if m.MinTime == 0 || d < m.MinTime {
		m.MinTime = d
	}
	if d > m.MaxTime {
		m.MaxTime = d
	}
}

// RecordTokens adds token usage for an inference call.
func (c *Collector) RecordTokens(op string, prompt, completion int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.TotalPromptTokens += prompt
	m.TotalCompletionTokens += completion
}

// Snapshot returns a copy of the current statistics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Ops:           make(map[string]OperationMetrics, len(c.ops)),
	}
	for name, m := range c.ops {
		out.Ops[name] = *m
	}
	return out
}
