package math

import (
	"math"
	"strconv"
)

// Format formats a float based on the given precision
func Format(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

// Sigmoid compresses the given value into the (0,1) range.
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// SigmoidDerivative returns the derivative of the sigmoid at the given pre-activation.
func SigmoidDerivative(x float64) float64 {
	s := Sigmoid(x)
	return s * (1 - s)
}

// Clip bounds the value into [-c, c].
func Clip(x, c float64) float64 {
	if x > c {
		return c
	}
	if x < -c {
		return -c
	}
	return x
}

// Center maps a value from the (0,1) range to the (-1,1) range.
func Center(p float64) float64 {
	return (p - 0.5) * 2
}

// Uncenter maps a value from the (-1,1) range back to the (0,1) range.
func Uncenter(c float64) float64 {
	return (c + 1) / 2
}

// Pearson computes the correlation coefficient from running sums.
// n is the number of accumulated pairs, the rest are the sums of x, y, x^2, y^2 and x*y.
func Pearson(n float64, sx, sy, sxx, syy, sxy float64) float64 {
	if n < 2 {
		return 0
	}
	cov := n*sxy - sx*sy
	vx := n*sxx - sx*sx
	vy := n*syy - sy*sy
	if vx <= 0 || vy <= 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}
