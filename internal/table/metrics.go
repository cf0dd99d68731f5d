package table

import (
	"sync/atomic"
	"time"
)

// Metrics counts backend traffic. Misses are lookups for absent keys; Errors
// are backend failures; Rejected are calls refused by an open breaker.
type Metrics struct {
	Reads     int64 `json:"reads"`
	Writes    int64 `json:"writes"`
	Misses    int64 `json:"misses"`
	Errors    int64 `json:"errors"`
	Rejected  int64 `json:"rejected"`
	StartTime int64 `json:"start_time"`
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now().Unix()}
}

func (m *Metrics) RecordRead()     { atomic.AddInt64(&m.Reads, 1) }
func (m *Metrics) RecordWrite()    { atomic.AddInt64(&m.Writes, 1) }
func (m *Metrics) RecordMiss()     { atomic.AddInt64(&m.Misses, 1) }
func (m *Metrics) RecordError()    { atomic.AddInt64(&m.Errors, 1) }
func (m *Metrics) RecordRejected() { atomic.AddInt64(&m.Rejected, 1) }

// Snapshot returns a consistent-enough copy for reporting.
func (m *Metrics) Snapshot() Metrics {
	return Metrics{
		Reads:     atomic.LoadInt64(&m.Reads),
		Writes:    atomic.LoadInt64(&m.Writes),
		Misses:    atomic.LoadInt64(&m.Misses),
		Errors:    atomic.LoadInt64(&m.Errors),
		Rejected:  atomic.LoadInt64(&m.Rejected),
		StartTime: m.StartTime,
	}
}

// ErrorRate is the percentage of calls that failed in the backend.
func (m *Metrics) ErrorRate() float64 {
	total := atomic.LoadInt64(&m.Reads) + atomic.LoadInt64(&m.Writes)
	if total == 0 {
		return 0.0
	}
	return float64(atomic.LoadInt64(&m.Errors)) / float64(total) * 100.0
}

func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.Reads, 0)
	atomic.StoreInt64(&m.Writes, 0)
	atomic.StoreInt64(&m.Misses, 0)
	atomic.StoreInt64(&m.Errors, 0)
	atomic.StoreInt64(&m.Rejected, 0)
	m.StartTime = time.Now().Unix()
}
