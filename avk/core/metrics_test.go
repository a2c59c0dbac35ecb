package core

import (
	"testing"
	"time"
)

func TestMetricsRollingAverage(t *testing.T) {
	m := NewMetrics()
	if m.Average() != 0 {
		t.Fatalf("empty metrics should average to zero")
	}
	m.Record(2 * time.Millisecond)
	m.Record(4 * time.Millisecond)
	if got := m.Average(); got != 3*time.Millisecond {
		t.Errorf("average = %v, want 3ms", got)
	}

	// Overflow the window; only the last AVG_COUNT samples count.
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Record(time.Millisecond)
	}
	if got := m.Average(); got != time.Millisecond {
		t.Errorf("average after wrap = %v, want 1ms", got)
	}
	if got := m.Count(); got != uint64(AVG_COUNT)+2 {
		t.Errorf("count = %d", got)
	}
	if got := m.Total(); got != 6*time.Millisecond+time.Duration(AVG_COUNT)*time.Millisecond {
		t.Errorf("total = %v", got)
	}
}

func TestMetricsStart(t *testing.T) {
	m := NewMetrics()
	stop := m.Start()
	stop()
	if m.Count() != 1 {
		t.Fatalf("expected one sample")
	}
}

func TestMathHelpers(t *testing.T) {
	if Clamp(5, 0, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(2, 0, 3) != 2 {
		t.Errorf("clamp")
	}
	if Max(uint32(2), 7) != 7 {
		t.Errorf("max")
	}
	if AlignUp(uint32(10), 4) != 12 || AlignUp(uint32(12), 4) != 12 {
		t.Errorf("align up")
	}
}
