package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStats_Freeze(t *testing.T) {

	s := &Stats{}
	assert.False(t, s.Frozen())

	s.Freeze([]float64{1, 2, 3, 4, 5})
	assert.True(t, s.Frozen())
	assert.InDelta(t, 3.0, s.Mean(), 1e-12)

	// second freeze is a no-op
	s.Freeze([]float64{100, 200, 300})
	assert.InDelta(t, 3.0, s.Mean(), 1e-12)
}

func TestStats_Roundtrip(t *testing.T) {

	s := &Stats{}
	vv := []float64{0.5, 1.5, -2.0, 3.25, 0.0, 7.5}
	s.Freeze(vv)

	for _, v := range vv {
		assert.InDelta(t, v, s.Denormalize(s.Normalize(v)), 1e-12)
	}
}

func TestStats_ConstantColumn(t *testing.T) {

	s := &Stats{}
	s.Freeze([]float64{2, 2, 2, 2})

	assert.Equal(t, 0.0, s.Normalize(2))
	assert.Equal(t, 2.0, s.Denormalize(0))
}

func TestStatsCollector(t *testing.T) {

	sc := NewStatsCollector(3)
	assert.Equal(t, 3, sc.Dim())

	sc.Column(0).Freeze([]float64{1, 2, 3})
	assert.True(t, sc.Column(0).Frozen())
	assert.False(t, sc.Column(1).Frozen())

	assert.Panics(t, func() { sc.Column(3) })
}
