package train

import (
	"errors"
	"fmt"
	"math"

	"github.com/drakos74/free-brain/internal/config"
	brainmath "github.com/drakos74/free-brain/internal/math"
	"github.com/drakos74/free-brain/internal/nn"
	"github.com/drakos74/free-brain/internal/pipeline"
	"github.com/drakos74/go-ex-machina/xmath"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrDiverged signals that a training session was aborted by the divergence guard.
// Parameters already applied by the optimizer are kept, the server keeps serving.
var ErrDiverged = errors.New("training session diverged")

// divergenceFactor aborts a session once the loss exceeds this multiple
// of the first loss observed in the session.
const divergenceFactor = 300.0

// Result summarises a single training session.
type Result struct {
	Session    string
	Iterations int
	FirstLoss  float64
	LastLoss   float64
	Diverged   bool
}

// Trainer runs truncated BPTT sessions over the training region of a dataset.
// The recurrent carry states of the minibatch lanes persist across sessions,
// each session continues the recurrence where the previous one stopped.
type Trainer struct {
	cfg       config.Config
	optimizer func() Optimizer
}

// NewTrainer creates a trainer for the given config.
func NewTrainer(cfg config.Config) *Trainer {
	return &Trainer{
		cfg: cfg,
		optimizer: func() Optimizer {
			return NewOptimizer(cfg)
		},
	}
}

// Lanes returns the number of interleaved minibatch lanes.
func (t *Trainer) Lanes() int {
	return t.cfg.BatchSize
}

// Session runs the configured number of iterations on the given network,
// carrying the lane states, and returns the advanced states.
// A divergence abort returns the states and result together with ErrDiverged.
func (t *Trainer) Session(net nn.Network, carry []nn.State, ds *pipeline.Dataset) ([]nn.State, Result, error) {
	cfg := t.cfg
	result := Result{Session: uuid.New().String()}

	trainLen := len(ds.Features) - cfg.EvalSize
	stride := cfg.SeqLength * cfg.BatchSize
	span := (cfg.BatchSize-1)*stride + cfg.SeqLength
	if span > trainLen {
		return carry, result, fmt.Errorf("train window %d cannot fit minibatch span %d: %w",
			trainLen, span, pipeline.ErrDimension)
	}
	maxOffset := trainLen - span

	if len(carry) != cfg.BatchSize {
		carry = make([]nn.State, cfg.BatchSize)
		for i := range carry {
			carry[i] = net.InitState()
		}
	}

	optimizer := t.optimizer()

	for iter := 0; iter < cfg.TrainIterations; iter++ {
		offset := 0
		if maxOffset > 0 {
			offset = (iter * cfg.SeqLength) % (maxOffset + 1)
		}

		net.ZeroGrads()
		loss, next := t.unroll(net, carry, ds, offset, true)
		grads := net.Grads()
		for i := range grads {
			grads[i] = brainmath.Clip(grads[i], cfg.GradientClip)
		}

		if iter == 0 {
			result.FirstLoss = loss
		}
		result.LastLoss = loss
		if math.IsNaN(loss) || loss > divergenceFactor*result.FirstLoss {
			result.Diverged = true
			log.Warn().
				Str("session", result.Session).
				Int("iteration", iter).
				Float64("first-loss", result.FirstLoss).
				Float64("loss", loss).
				Msg("aborting training session")
			return carry, result, fmt.Errorf("loss %f after %f at iteration %d: %w",
				loss, result.FirstLoss, iter, ErrDiverged)
		}

		params := optimizer.Step(net.Params(), grads, t.objective(net, carry, ds, offset))
		net.SetParams(params)
		net.ZeroGrads()

		carry = next
		result.Iterations = iter + 1
	}

	log.Debug().
		Str("session", result.Session).
		Int("iterations", result.Iterations).
		Float64("first-loss", result.FirstLoss).
		Float64("last-loss", result.LastLoss).
		Msg("training session complete")

	return carry, result, nil
}

// unroll runs the forward pass over all lanes for seq-length steps and,
// if backward is set, backpropagates from the last timestep to the first
// with the truncation-boundary gradient seeded at zero.
// It returns the loss averaged over all timesteps and the advanced lane states.
func (t *Trainer) unroll(net nn.Network, carry []nn.State, ds *pipeline.Dataset, offset int, backward bool) (float64, []nn.State) {
	cfg := t.cfg
	stride := cfg.SeqLength * cfg.BatchSize
	norm := float64(cfg.SeqLength * cfg.BatchSize)

	loss := 0.0
	next := make([]nn.State, cfg.BatchSize)

	for lane := 0; lane < cfg.BatchSize; lane++ {
		base := offset + lane*stride
		clones := net.Clones(cfg.SeqLength)
		state := carry[lane].Copy()
		outs := make([]xmath.Vector, cfg.SeqLength)
		for step := 0; step < cfg.SeqLength; step++ {
			state, outs[step] = clones[step].Forward(ds.Features[base+step], state)
			d := outs[step][0] - target(t.cfg, ds.Labels[base+step])
			loss += 0.5 * d * d / norm
		}
		next[lane] = state

		if backward {
			gradState := net.InitState()
			for step := cfg.SeqLength - 1; step >= 0; step-- {
				gradOut := xmath.Vec(len(outs[step]))
				gradOut[0] = (outs[step][0] - target(t.cfg, ds.Labels[base+step])) / norm
				gradState, _ = clones[step].Backward(gradOut, gradState)
			}
		}
	}

	return loss, next
}

// objective freezes the current carry and exposes the minibatch loss surface,
// so that line-searching optimizers can probe arbitrary parameter points.
func (t *Trainer) objective(net nn.Network, carry []nn.State, ds *pipeline.Dataset, offset int) Objective {
	return Objective{
		Loss: func(p xmath.Vector) float64 {
			saved := net.Params().Copy()
			net.SetParams(p)
			loss, _ := t.unroll(net, carry, ds, offset, false)
			net.SetParams(saved)
			return loss
		},
		Grad: func(p xmath.Vector) xmath.Vector {
			saved := net.Params().Copy()
			net.SetParams(p)
			net.ZeroGrads()
			t.unroll(net, carry, ds, offset, true)
			grads := net.Grads()
			net.SetParams(saved)
			net.ZeroGrads()
			return grads
		},
	}
}
