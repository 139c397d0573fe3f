package nn

import (
	"github.com/drakos74/go-ex-machina/xmath"
)

// State is the recurrent carry between timesteps, one fixed slot per layer.
// Training and evaluation keep separate State values so that inference
// continuity is never disturbed by a training pass.
type State []xmath.Vector

// NewState creates a zero state with the given layer dimensions.
func NewState(dims ...int) State {
	s := make(State, len(dims))
	for i, d := range dims {
		s[i] = xmath.Vec(d)
	}
	return s
}

// Copy clones the state so that a caller can branch off without sharing slots.
func (s State) Copy() State {
	c := make(State, len(s))
	for i, v := range s {
		c[i] = v.Copy()
	}
	return c
}

// Network is the recurrent sequence model capability consumed by the trainer
// and the evaluator. The internal topology stays opaque, interaction happens
// through time-unrolled clones and the flat parameter and gradient vectors.
type Network interface {
	// InitState returns a fresh zero recurrent state.
	InitState() State
	// Clones returns n time-unrolled copies sharing the parameters
	// while keeping independent activations.
	Clones(n int) []Clone
	// Params returns the flat parameter vector.
	Params() xmath.Vector
	// SetParams overwrites the parameters from a flat vector of matching size.
	SetParams(p xmath.Vector)
	// Grads returns the flat gradient vector matching Params,
	// accumulated by the Backward calls of the clones.
	Grads() xmath.Vector
	// ZeroGrads resets the accumulated gradients.
	ZeroGrads()
	// InputSize returns the expected input width.
	InputSize() int
}

// Clone is one time-unrolled copy of a network, valid for a single timestep.
type Clone interface {
	// Forward runs the timestep, keeping the activations for the backward pass.
	Forward(x xmath.Vector, s State) (State, xmath.Vector)
	// Backward accumulates the parameter gradients of this timestep and returns
	// the gradient flowing into the prior state and the input.
	Backward(gradOut xmath.Vector, gradState State) (State, xmath.Vector)
}

// Construct creates a network for the given input width.
// It allows the ensemble to build members lazily on their first training turn.
type Construct func(inputSize int) Network
