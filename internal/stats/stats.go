// Package stats keeps the process-wide processing counters.
package stats

import (
	"sync"
	"time"
)

const (
	// InitialAverageProcessingTime seeds the rolling average, in seconds.
	InitialAverageProcessingTime = 2.8
	// SuccessRate is reported as a constant.
	SuccessRate = 0.94
)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalProcessed    int64   `json:"total_processed"`
	SuccessRate       float64 `json:"success_rate"`
	AvgProcessingTime float64 `json:"avg_processing_time"`
}

// Stats is a shared handle over the counters. The zero value is not usable;
// construct with New.
type Stats struct {
	mu                sync.Mutex
	totalProcessed    int64
	avgProcessingTime float64
	successRate       float64
}

// New returns counters initialised to their start-of-process values.
func New() *Stats {
	return &Stats{
		avgProcessingTime: InitialAverageProcessingTime,
		successRate:       SuccessRate,
	}
}

// Record counts one processed image. The average is folded as
// (previous + elapsed) / 2, weighting the latest call at one half.
func (s *Stats) Record(elapsed time.Duration) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalProcessed++
	s.avgProcessingTime = (s.avgProcessingTime + elapsed.Seconds()) / 2
	return s.snapshotLocked()
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Stats) snapshotLocked() Snapshot {
	return Snapshot{
		TotalProcessed:    s.totalProcessed,
		SuccessRate:       s.successRate,
		AvgProcessingTime: s.avgProcessingTime,
	}
}
