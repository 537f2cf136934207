package inference

import (
	"time"

	"github.com/montanaflynn/stats"
)

const throughputWindow = 30

// throughputMeter tracks frame processing rate. Tick returns a fresh
// rate on every throughputWindow-th processed frame, averaged over the
// inter-frame intervals observed since the previous report, and false
// otherwise.
type throughputMeter struct {
	last      time.Time
	intervals []float64
	frames    uint64
}

func newThroughputMeter() *throughputMeter {
	return &throughputMeter{
		intervals: make([]float64, 0, throughputWindow),
	}
}

func (m *throughputMeter) Tick(now time.Time) (float64, bool) {
	m.frames++
	if !m.last.IsZero() {
		m.intervals = append(m.intervals, now.Sub(m.last).Seconds())
	}
	m.last = now

	if m.frames%throughputWindow != 0 || len(m.intervals) == 0 {
		return 0, false
	}

	mean, err := stats.Mean(stats.Float64Data(m.intervals))
	m.intervals = m.intervals[:0]
	if err != nil || mean <= 0 {
		return 0, false
	}

	return 1 / mean, true
}

func (m *throughputMeter) Frames() uint64 {
	return m.frames
}
