package buffer

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Stats holds the persisted normalisation statistics of a single feature column.
// The statistics are computed once on the first Freeze and are read-only afterwards.
type Stats struct {
	mean   float64
	std    float64
	frozen bool
}

// Freeze computes and latches mean and standard deviation from the given values.
// Subsequent calls are no-ops, the first computed values stay in effect.
func (s *Stats) Freeze(values []float64) {
	if s.frozen {
		return
	}
	mean, std := stat.MeanStdDev(values, nil)
	if std == 0 {
		// constant columns normalise to zero offset
		std = 1
	}
	s.mean = mean
	s.std = std
	s.frozen = true
}

// Frozen reports whether the statistics have been latched.
func (s Stats) Frozen() bool {
	return s.frozen
}

// Mean returns the latched mean.
func (s Stats) Mean() float64 {
	return s.mean
}

// StdDev returns the latched standard deviation.
func (s Stats) StdDev() float64 {
	return s.std
}

// Normalize scales the value with the latched statistics.
func (s Stats) Normalize(v float64) float64 {
	return (v - s.mean) / s.std
}

// Denormalize recovers the raw value from a normalised one.
func (s Stats) Denormalize(v float64) float64 {
	return v*s.std + s.mean
}

// StatsCollector keeps one Stats latch per feature column.
type StatsCollector struct {
	dim   int
	stats []*Stats
}

// NewStatsCollector creates a new collector for the given number of columns.
func NewStatsCollector(dim int) *StatsCollector {
	stats := make([]*Stats, dim)
	for i := 0; i < dim; i++ {
		stats[i] = &Stats{}
	}
	return &StatsCollector{
		dim:   dim,
		stats: stats,
	}
}

// Column returns the stats latch for the given column.
func (sc *StatsCollector) Column(i int) *Stats {
	if i < 0 || i >= sc.dim {
		panic(fmt.Sprintf("no stats for column %d of %d", i, sc.dim))
	}
	return sc.stats[i]
}

// Dim returns the number of tracked columns.
func (sc *StatsCollector) Dim() int {
	return sc.dim
}
