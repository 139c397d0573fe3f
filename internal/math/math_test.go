package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSigmoid(t *testing.T) {
	assert.Equal(t, 0.5, Sigmoid(0))
	assert.True(t, Sigmoid(10) > 0.99)
	assert.True(t, Sigmoid(-10) < 0.01)
}

func TestClip(t *testing.T) {
	assert.Equal(t, 1.0, Clip(5, 1))
	assert.Equal(t, -1.0, Clip(-5, 1))
	assert.Equal(t, 0.3, Clip(0.3, 1))
}

func TestCenterRoundtrip(t *testing.T) {
	for _, p := range []float64{0, 0.25, 0.5, 0.75, 1} {
		assert.InDelta(t, p, Uncenter(Center(p)), 1e-12)
	}
}

func TestPearson(t *testing.T) {

	type test struct {
		x, y []float64
		corr float64
	}

	tests := map[string]test{
		"perfect-positive": {
			x:    []float64{1, 2, 3, 4},
			y:    []float64{2, 4, 6, 8},
			corr: 1,
		},
		"perfect-negative": {
			x:    []float64{1, 2, 3, 4},
			y:    []float64{8, 6, 4, 2},
			corr: -1,
		},
		"constant": {
			x:    []float64{1, 2, 3, 4},
			y:    []float64{5, 5, 5, 5},
			corr: 0,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var n, sx, sy, sxx, syy, sxy float64
			for i := range tt.x {
				n++
				sx += tt.x[i]
				sy += tt.y[i]
				sxx += tt.x[i] * tt.x[i]
				syy += tt.y[i] * tt.y[i]
				sxy += tt.x[i] * tt.y[i]
			}
			assert.InDelta(t, tt.corr, Pearson(n, sx, sy, sxx, syy, sxy), 1e-9)
		})
	}
}
