package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewStartsFromInitialValues(t *testing.T) {
	snap := New().Snapshot()

	assert.Equal(t, int64(0), snap.TotalProcessed)
	assert.Equal(t, SuccessRate, snap.SuccessRate)
	assert.Equal(t, InitialAverageProcessingTime, snap.AvgProcessingTime)
}

func TestRecordFoldsRunningAverage(t *testing.T) {
	s := New()

	snap := s.Record(1200 * time.Millisecond)
	assert.Equal(t, int64(1), snap.TotalProcessed)
	assert.InDelta(t, (2.8+1.2)/2, snap.AvgProcessingTime, 1e-9)

	snap = s.Record(0)
	assert.Equal(t, int64(2), snap.TotalProcessed)
	assert.InDelta(t, 1.0, snap.AvgProcessingTime, 1e-9)
	assert.Equal(t, snap, s.Snapshot())
}

func TestRecordIsSafeForConcurrentUse(t *testing.T) {
	s := New()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			s.Record(10 * time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(workers), s.Snapshot().TotalProcessed)
}
