package train

import (
	"math"

	"github.com/drakos74/free-brain/internal/config"
	brainmath "github.com/drakos74/free-brain/internal/math"
	"github.com/drakos74/free-brain/internal/nn"
	"github.com/drakos74/free-brain/internal/pipeline"
	"github.com/rs/zerolog/log"
)

// numThresholds is the number of symmetric confidence thresholds (0.0, 0.1, .. 0.9).
const numThresholds = 10

// Summary is the outcome of one evaluation walk. Loss and Accuracy average
// the walk itself, the EMA fields track every step across all runs to date.
type Summary struct {
	Steps       int
	Loss        float64
	Accuracy    float64
	EMALoss     float64
	EMAAccuracy float64
}

// Cell aggregates statistics for one confidence threshold at one step position,
// accumulated across all evaluation runs to date.
type Cell struct {
	Count int
	Hits  int

	n, sx, sy, sxx, syy, sxy float64
}

// HitRate returns the fraction of sign agreements among the counted predictions.
func (c Cell) HitRate() float64 {
	if c.Count == 0 {
		return 0
	}
	return float64(c.Hits) / float64(c.Count)
}

// Correlation returns the Pearson correlation of the centered predictions
// against the centered labels.
func (c Cell) Correlation() float64 {
	return brainmath.Pearson(c.n, c.sx, c.sy, c.sxx, c.syy, c.sxy)
}

func (c *Cell) push(x, y float64, hit bool) {
	c.Count++
	if hit {
		c.Hits++
	}
	c.n++
	c.sx += x
	c.sy += y
	c.sxx += x * x
	c.syy += y * y
	c.sxy += x * y
}

// Evaluator walks forward over the held-out steps right after the training
// window, reproducing production-time behaviour with a separate carried state.
type Evaluator struct {
	cfg     config.Config
	seeded  bool
	emaLoss float64
	emaAcc  float64
	cells   [numThresholds][]*Cell
}

// NewEvaluator creates an evaluator with an empty statistics table.
func NewEvaluator(cfg config.Config) *Evaluator {
	e := &Evaluator{cfg: cfg}
	for i := 0; i < numThresholds; i++ {
		e.cells[i] = make([]*Cell, cfg.EvalSize)
		for j := range e.cells[i] {
			e.cells[i][j] = &Cell{}
		}
	}
	return e
}

// Cell returns a copy of the statistics cell for the given threshold index and step position.
func (e *Evaluator) Cell(threshold, step int) Cell {
	return *e.cells[threshold][step]
}

// Run walks the evaluation region with the given carried state and returns
// the advanced state together with the run summary.
func (e *Evaluator) Run(net nn.Network, state nn.State, ds *pipeline.Dataset) (nn.State, Summary) {
	cfg := e.cfg
	start := len(ds.Features) - cfg.EvalSize

	a := cfg.EMAAdaptation
	var loss float64
	hits := 0
	for j := 0; j < cfg.EvalSize; j++ {
		idx := start + j
		clone := net.Clones(1)[0]
		next, out := clone.Forward(ds.Features[idx], state)
		state = next

		p := out[0]
		y := target(cfg, ds.Labels[idx])

		d := p - y
		stepLoss := 0.5 * d * d
		loss += stepLoss

		// sign agreement relative to the shared midpoint
		hit := (p-0.5)*(y-0.5) > 0
		hitVal := 0.0
		if hit {
			hits++
			hitVal = 1
		}

		// the moving averages track every single step,
		// the first step ever seeds them
		if !e.seeded {
			e.emaLoss = stepLoss
			e.emaAcc = hitVal
			e.seeded = true
		} else {
			e.emaLoss = a*stepLoss + (1-a)*e.emaLoss
			e.emaAcc = a*hitVal + (1-a)*e.emaAcc
		}

		cx := brainmath.Center(p)
		cy := brainmath.Center(y)
		conf := math.Abs(cx)
		for i := 0; i < numThresholds; i++ {
			if conf > float64(i)/10 {
				e.cells[i][j].push(cx, cy, hit)
			}
		}
	}

	loss /= float64(cfg.EvalSize)
	accuracy := float64(hits) / float64(cfg.EvalSize)

	summary := Summary{
		Steps:       cfg.EvalSize,
		Loss:        loss,
		Accuracy:    accuracy,
		EMALoss:     e.emaLoss,
		EMAAccuracy: e.emaAcc,
	}

	log.Debug().
		Float64("loss", summary.Loss).
		Float64("accuracy", summary.Accuracy).
		Float64("ema-loss", summary.EMALoss).
		Float64("ema-accuracy", summary.EMAAccuracy).
		Msg("evaluation complete")

	return state, summary
}

// target maps a label to the (0,1) output range of the network.
// Multi-class labels are mapped to their class centers.
func target(cfg config.Config, label float64) float64 {
	if cfg.NumClasses > 1 {
		return (label - 0.5) / float64(cfg.NumClasses)
	}
	return label
}
