package train

import (
	"math"

	"github.com/drakos74/free-brain/internal/config"
	"github.com/drakos74/go-ex-machina/xmath"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/optimize"
)

const (
	rmsEpsilon = 1e-8
	cgMaxEval  = 6
	cgMaxIter  = 2
)

// Objective exposes the minibatch loss surface to optimizers that need to
// evaluate it at arbitrary parameter points.
type Objective struct {
	Loss func(p xmath.Vector) float64
	Grad func(p xmath.Vector) xmath.Vector
}

// Optimizer applies one parameter update for the current minibatch.
// The optimizer state is transient, it lives for a single training session.
type Optimizer interface {
	Step(params, grads xmath.Vector, obj Objective) xmath.Vector
}

// NewOptimizer selects the configured optimizer implementation.
func NewOptimizer(cfg config.Config) Optimizer {
	switch cfg.Optimizer {
	case config.ConjugateGradient:
		return &conjugateGradient{}
	default:
		return &rmsProp{
			rate:  cfg.LearningRate,
			alpha: cfg.RMSDecay,
		}
	}
}

// rmsProp keeps a running average of squared gradients and scales
// each update by the inverse of its square root.
type rmsProp struct {
	rate  float64
	alpha float64
	cache xmath.Vector
}

func (r *rmsProp) Step(params, grads xmath.Vector, _ Objective) xmath.Vector {
	if r.cache == nil {
		r.cache = xmath.Vec(len(params))
	}
	next := xmath.Vec(len(params))
	for i := range params {
		g := grads[i]
		r.cache[i] = r.alpha*r.cache[i] + (1-r.alpha)*g*g
		next[i] = params[i] - r.rate*g/(math.Sqrt(r.cache[i])+rmsEpsilon)
	}
	return next
}

// conjugateGradient delegates to gonum with a tight evaluation budget,
// suitable for the repeated small steps of online training.
type conjugateGradient struct{}

func (c *conjugateGradient) Step(params, grads xmath.Vector, obj Objective) xmath.Vector {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return obj.Loss(xmath.Vector(x))
		},
		Grad: func(grad, x []float64) {
			copy(grad, obj.Grad(xmath.Vector(x)))
		},
	}
	settings := &optimize.Settings{
		MajorIterations: cgMaxIter,
		FuncEvaluations: cgMaxEval,
	}
	result, err := optimize.Minimize(problem, params, settings, &optimize.CG{})
	if err != nil || result == nil {
		log.Debug().Err(err).Msg("conjugate gradient step did not converge")
		if result == nil {
			return params.Copy()
		}
	}
	return xmath.Vector(result.X).Copy()
}
