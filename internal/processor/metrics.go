package processor

import (
	"sync/atomic"
	"time"
)

type ServiceMetrics struct {
	totalProcessed  atomic.Int64
	totalFailed     atomic.Int64
	totalDurationNs atomic.Int64
	startedNs       atomic.Int64
}

type Stats struct {
	TotalProcessed int64
	TotalFailed    int64
	RatePerSecond  float64
	AvgDuration    time.Duration
	Uptime         time.Duration
}

func NewServiceMetrics() *ServiceMetrics {
	m := &ServiceMetrics{}
	m.startedNs.Store(time.Now().UnixNano())
	return m
}

func (m *ServiceMetrics) RecordSuccess(duration time.Duration) {
	m.totalProcessed.Add(1)
	m.totalDurationNs.Add(int64(duration))
}

func (m *ServiceMetrics) RecordFailure() {
	m.totalFailed.Add(1)
}

func (m *ServiceMetrics) GetStats() Stats {
	processed := m.totalProcessed.Load()
	uptime := time.Since(time.Unix(0, m.startedNs.Load()))

	stats := Stats{
		TotalProcessed: processed,
		TotalFailed:    m.totalFailed.Load(),
		Uptime:         uptime,
	}
	if secs := uptime.Seconds(); secs > 0 {
		stats.RatePerSecond = float64(processed) / secs
	}
	if processed > 0 {
		stats.AvgDuration = time.Duration(m.totalDurationNs.Load() / processed)
	}
	return stats
}
