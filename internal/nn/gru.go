package nn

import (
	"math"
	"math/rand"

	brainmath "github.com/drakos74/free-brain/internal/math"
	"github.com/drakos74/go-ex-machina/xmath"
)

// GRU is a single gated recurrent cell with a sigmoid output layer,
// so that predictions land directly in the (0,1) range of the labels.
type GRU struct {
	inputSize  int
	hiddenSize int
	outputSize int

	wr, ur xmath.Matrix // reset gate
	wz, uz xmath.Matrix // update gate
	wx, ux xmath.Matrix // candidate
	wo     xmath.Matrix // output layer
	bo     xmath.Vector

	gwr, gur xmath.Matrix
	gwz, guz xmath.Matrix
	gwx, gux xmath.Matrix
	gwo      xmath.Matrix
	gbo      xmath.Vector
}

// NewGRU creates a new cell with He initialised weights.
func NewGRU(inputSize, hiddenSize, outputSize int) *GRU {
	return &GRU{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		outputSize: outputSize,
		wr:         heMat(hiddenSize, inputSize),
		ur:         heMat(hiddenSize, hiddenSize),
		wz:         heMat(hiddenSize, inputSize),
		uz:         heMat(hiddenSize, hiddenSize),
		wx:         heMat(hiddenSize, inputSize),
		ux:         heMat(hiddenSize, hiddenSize),
		wo:         heMat(outputSize, hiddenSize),
		bo:         xmath.Vec(outputSize),
		gwr:        xmath.Mat(hiddenSize).Of(inputSize),
		gur:        xmath.Mat(hiddenSize).Of(hiddenSize),
		gwz:        xmath.Mat(hiddenSize).Of(inputSize),
		guz:        xmath.Mat(hiddenSize).Of(hiddenSize),
		gwx:        xmath.Mat(hiddenSize).Of(inputSize),
		gux:        xmath.Mat(hiddenSize).Of(hiddenSize),
		gwo:        xmath.Mat(outputSize).Of(hiddenSize),
		gbo:        xmath.Vec(outputSize),
	}
}

// InputSize returns the expected input width.
func (g *GRU) InputSize() int {
	return g.inputSize
}

// InitState returns a zero recurrent state with one slot for the single layer.
func (g *GRU) InitState() State {
	return NewState(g.hiddenSize)
}

// gruStep is one time-unrolled copy of the cell. It shares the parameters with
// its parent and keeps only the activations of its own timestep.
type gruStep struct {
	net *GRU

	x, hPrev xmath.Vector
	r, z, c  xmath.Vector
	uxh      xmath.Vector
	h, out   xmath.Vector
}

// Clones returns n unrolled copies sharing the cell parameters.
func (g *GRU) Clones(n int) []Clone {
	cc := make([]Clone, n)
	for i := range cc {
		cc[i] = &gruStep{net: g}
	}
	return cc
}

// Forward runs one timestep, storing the activations for the backward pass.
func (cl *gruStep) Forward(x xmath.Vector, s State) (State, xmath.Vector) {
	g := cl.net
	hPrev := s[0]

	cl.x = x.Copy()
	cl.hPrev = hPrev.Copy()

	cl.r = g.wr.Prod(x).Add(g.ur.Prod(hPrev)).Op(brainmath.Sigmoid)
	cl.z = g.wz.Prod(x).Add(g.uz.Prod(hPrev)).Op(brainmath.Sigmoid)
	cl.uxh = g.ux.Prod(hPrev)
	cl.c = g.wx.Prod(x).Add(cl.r.X(cl.uxh)).Op(math.Tanh)

	h := cl.z.X(hPrev).Add(ones(len(cl.z)).Diff(cl.z).X(cl.c))
	cl.h = h

	cl.out = g.wo.Prod(h).Add(g.bo).Op(brainmath.Sigmoid)
	return State{h}, cl.out.Copy()
}

// Backward accumulates the parameter gradients for this timestep.
// gradOut is the loss gradient on the output, gradState the gradient flowing
// back from the following timestep. At the truncation boundary the caller
// seeds gradState with zeros, assuming no influence from beyond the window.
func (cl *gruStep) Backward(gradOut xmath.Vector, gradState State) (State, xmath.Vector) {
	g := cl.net
	dhNext := gradState[0]

	// output layer, sigmoid activation
	dpre := gradOut.X(cl.out.X(ones(len(cl.out)).Diff(cl.out)))
	g.gwo = g.gwo.Add(dpre.Prod(cl.h))
	g.gbo = g.gbo.Add(dpre)

	dh := g.wo.T().Prod(dpre).Add(dhNext)

	// candidate, tanh activation
	dc := dh.X(ones(len(cl.z)).Diff(cl.z)).X(ones(len(cl.c)).Diff(cl.c.X(cl.c)))
	// update gate
	dz := dh.X(cl.hPrev.Diff(cl.c)).X(cl.z.X(ones(len(cl.z)).Diff(cl.z)))
	// reset gate
	dr := dc.X(cl.uxh).X(cl.r.X(ones(len(cl.r)).Diff(cl.r)))

	dcr := dc.X(cl.r)

	g.gwx = g.gwx.Add(dc.Prod(cl.x))
	g.gux = g.gux.Add(dcr.Prod(cl.hPrev))
	g.gwz = g.gwz.Add(dz.Prod(cl.x))
	g.guz = g.guz.Add(dz.Prod(cl.hPrev))
	g.gwr = g.gwr.Add(dr.Prod(cl.x))
	g.gur = g.gur.Add(dr.Prod(cl.hPrev))

	dhPrev := dh.X(cl.z).
		Add(g.ur.T().Prod(dr)).
		Add(g.uz.T().Prod(dz)).
		Add(g.ux.T().Prod(dcr))

	dx := g.wr.T().Prod(dr).
		Add(g.wz.T().Prod(dz)).
		Add(g.wx.T().Prod(dc))

	return State{dhPrev}, dx
}

// Params returns all weights flattened into a single vector.
func (g *GRU) Params() xmath.Vector {
	return flatten(g.matrices(), g.bo)
}

// SetParams overwrites all weights from the flat vector.
func (g *GRU) SetParams(p xmath.Vector) {
	unflatten(p, g.matrices(), g.bo)
}

// Grads returns the accumulated gradients flattened in the same order as Params.
func (g *GRU) Grads() xmath.Vector {
	return flatten(g.gradients(), g.gbo)
}

// ZeroGrads resets the gradient accumulators.
func (g *GRU) ZeroGrads() {
	for _, m := range g.gradients() {
		for i := range m {
			for j := range m[i] {
				m[i][j] = 0
			}
		}
	}
	for i := range g.gbo {
		g.gbo[i] = 0
	}
}

func (g *GRU) matrices() []xmath.Matrix {
	return []xmath.Matrix{g.wr, g.ur, g.wz, g.uz, g.wx, g.ux, g.wo}
}

func (g *GRU) gradients() []xmath.Matrix {
	return []xmath.Matrix{g.gwr, g.gur, g.gwz, g.guz, g.gwx, g.gux, g.gwo}
}

func flatten(mm []xmath.Matrix, v xmath.Vector) xmath.Vector {
	out := make(xmath.Vector, 0)
	for _, m := range mm {
		for _, row := range m {
			out = append(out, row...)
		}
	}
	return append(out, v...)
}

func unflatten(p xmath.Vector, mm []xmath.Matrix, v xmath.Vector) {
	k := 0
	for _, m := range mm {
		for i := range m {
			for j := range m[i] {
				m[i][j] = p[k]
				k++
			}
		}
	}
	for i := range v {
		v[i] = p[k]
		k++
	}
	xmath.MustHaveSize(p, k)
}

func ones(n int) xmath.Vector {
	v := xmath.Vec(n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func heMat(n, m int) xmath.Matrix {
	w := xmath.Mat(n).Of(m)
	scale := math.Sqrt(2.0 / float64(m))
	for i := range w {
		for j := range w[i] {
			w[i][j] = rand.NormFloat64() * scale
		}
	}
	return w
}
