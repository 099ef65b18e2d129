package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

const hitRateTolerance = 1e-9

func TestMetrics_SessionLifecycleCounts(t *testing.T) {
	m := &metrics{}

	m.sessionCreated()
	m.sessionCreated()
	m.sessionCreated()
	m.sessionsClosed(2)

	snap := m.snapshot()
	assert.Equal(t, int64(3), snap.TotalSessions)
	assert.Equal(t, int64(1), snap.ActiveSessions)
}

func TestMetrics_HitRateMovingAverage(t *testing.T) {
	m := &metrics{}

	// First observation moves the rate off zero by exactly the weight.
	m.observeLookup(true)
	assert.InDelta(t, hitRateWeight, m.snapshot().CacheHitRate, hitRateTolerance)

	// A miss decays it by (1 - weight).
	m.observeLookup(false)
	assert.InDelta(t, hitRateWeight*(1-hitRateWeight), m.snapshot().CacheHitRate, hitRateTolerance)

	// A long streak of hits converges toward 1.
	for n := 0; n < 200; n++ {
		m.observeLookup(true)
	}
	assert.Greater(t, m.snapshot().CacheHitRate, 0.99)
	assert.LessOrEqual(t, m.snapshot().CacheHitRate, 1.0)
}

func TestMetrics_SweepCompleted(t *testing.T) {
	m := &metrics{}
	m.sessionCreated()
	m.sessionCreated()

	m.sweepCompleted(2)
	m.sweepCompleted(0)

	snap := m.snapshot()
	assert.Equal(t, int64(2), snap.CleanupCount)
	assert.Equal(t, int64(0), snap.ActiveSessions)
}

func TestMetrics_SecurityEvents(t *testing.T) {
	m := &metrics{}
	m.securityEvent()
	m.securityEvent()

	assert.Equal(t, int64(2), m.snapshot().SecurityEvents)
}

func TestMetrics_ConcurrentUpdates(t *testing.T) {
	m := &metrics{}

	const goroutines = 8
	const perGoroutine = 100

	var wg sync.WaitGroup
	for n := 0; n < goroutines; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				m.sessionCreated()
				m.observeLookup(i%2 == 0)
				m.securityEvent()
			}
		}()
	}
	wg.Wait()

	snap := m.snapshot()
	assert.Equal(t, int64(goroutines*perGoroutine), snap.TotalSessions)
	assert.Equal(t, int64(goroutines*perGoroutine), snap.SecurityEvents)
	assert.GreaterOrEqual(t, snap.CacheHitRate, 0.0)
	assert.LessOrEqual(t, snap.CacheHitRate, 1.0)
}
