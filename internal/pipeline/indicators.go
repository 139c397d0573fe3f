package pipeline

import (
	"math"
)

// The single-series transforms below are pure, they return new slices and
// leave the input untouched. Output length always equals input length.

// LogReturn computes the natural log of the ratio of each value to the value
// offset steps before it. The first offset entries default to ratio 1, e.g. log 0.
// A smoothing period > 1 applies exponential smoothing with coefficient 2/(period+1),
// seeded by the first raw log-return value.
func LogReturn(series []float64, offset, smoothPeriod int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		if i < offset {
			out[i] = 0
			continue
		}
		out[i] = math.Log(series[i] / series[i-offset])
	}
	if smoothPeriod > 1 {
		k := 2.0 / (float64(smoothPeriod) + 1)
		ema := out[0]
		for i := range out {
			ema = k*out[i] + (1-k)*ema
			out[i] = ema
		}
	}
	return out
}

// EMA computes the exponential moving average of the raw values,
// seeded by the first element.
func EMA(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	k := 2.0 / (float64(period) + 1)
	ema := series[0]
	for i, v := range series {
		ema = k*v + (1-k)*ema
		out[i] = ema
	}
	return out
}

// REMA computes exponential smoothing over the log-ratio of consecutive elements.
// The smoothing accumulator starts at zero, the previous-value tracker at the first element.
func REMA(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	k := 2.0 / (float64(period) + 1)
	acc := 0.0
	prev := series[0]
	for i, v := range series {
		acc = k*math.Log(v/prev) + (1-k)*acc
		out[i] = acc
		prev = v
	}
	return out
}

// rsiEpsilon seeds the up and down accumulators, keeping the denominator positive.
const rsiEpsilon = 0.001

// RSI maintains exponential accumulators of up-moves and down-moves and outputs
// the ratio up/(up+down), already bounded in [0,1]. Only the side matching the
// current move is decayed on each step, the other accumulator is left untouched.
func RSI(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	k := 2.0 / (float64(period) + 1)
	up := rsiEpsilon
	down := rsiEpsilon
	prev := series[0]
	for i, v := range series {
		d := v - prev
		if d > 0 {
			up = k*d + (1-k)*up
		} else if d < 0 {
			down = k*(-d) + (1-k)*down
		}
		out[i] = up / (up + down)
		prev = v
	}
	return out
}
