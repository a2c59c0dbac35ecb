package core

import (
	"sync"
	"time"

	"github.com/loov/hrtime"
)

const AVG_COUNT uint8 = 30

// Metrics keeps a rolling average over the last AVG_COUNT samples of some
// timed operation, e.g. descriptor set allocation.
type Metrics struct {
	mu          sync.Mutex
	avgCounter  uint8
	samples     [AVG_COUNT]time.Duration
	filled      uint8
	total       uint64
	accumulated time.Duration
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Start returns a stop function recording the elapsed time when called.
func (m *Metrics) Start() func() {
	start := hrtime.Now()
	return func() {
		m.Record(hrtime.Since(start))
	}
}

func (m *Metrics) Record(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples[m.avgCounter] = d
	m.avgCounter++
	m.avgCounter %= AVG_COUNT
	if m.filled < AVG_COUNT {
		m.filled++
	}
	m.total++
	m.accumulated += d
}

// Average over the rolling window.
func (m *Metrics) Average() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.filled == 0 {
		return 0
	}
	var sum time.Duration
	for i := uint8(0); i < m.filled; i++ {
		sum += m.samples[i]
	}
	return sum / time.Duration(m.filled)
}

func (m *Metrics) Count() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

func (m *Metrics) Total() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accumulated
}
