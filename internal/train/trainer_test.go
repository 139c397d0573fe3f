package train

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/drakos74/free-brain/internal/config"
	"github.com/drakos74/free-brain/internal/nn"
	"github.com/drakos74/free-brain/internal/pipeline"
	"github.com/drakos74/go-ex-machina/xmath"
	"github.com/stretchr/testify/assert"
)

func trainConfig(t *testing.T) config.Config {
	cfg, err := config.New(config.Config{
		TrainSize:       40,
		WarmupOffset:    10,
		EvalSize:        5,
		LabelOffset:     1,
		NumClasses:      1,
		EMAPeriods:      []int{5},
		SeqLength:       5,
		BatchSize:       2,
		TrainIterations: 30,
		TrainFrequency:  5,
		EnsembleSize:    2,
		HiddenSize:      6,
		LearningRate:    0.05,
		RMSDecay:        0.9,
		GradientClip:    5,
		EMAAdaptation:   0.1,
	})
	assert.NoError(t, err)
	return cfg
}

// testDataset builds an aligned dataset with features in (0,1) and labels
// following a simple repeating pattern.
func testDataset(rows, width int) *pipeline.Dataset {
	rand.Seed(7)
	features := xmath.Mat(rows).Of(width)
	labels := xmath.Vec(rows)
	times := make([]int64, rows)
	for i := 0; i < rows; i++ {
		for j := 0; j < width; j++ {
			features[i][j] = rand.Float64()
		}
		labels[i] = 0.5 + 0.3*math.Sin(float64(i)/5)
		times[i] = int64(1600000000 + i*60)
	}
	return &pipeline.Dataset{Times: times, Features: features, Labels: labels}
}

func TestTrainer_Session(t *testing.T) {

	cfg := trainConfig(t)
	rand.Seed(5)
	net := nn.NewGRU(4, cfg.HiddenSize, 1)
	ds := testDataset(45, 4)

	trainer := NewTrainer(cfg)
	before := net.Params().Copy()

	carry, result, err := trainer.Session(net, nil, ds)
	assert.NoError(t, err)
	assert.Equal(t, cfg.TrainIterations, result.Iterations)
	assert.False(t, result.Diverged)
	assert.False(t, math.IsNaN(result.FirstLoss))
	assert.False(t, math.IsNaN(result.LastLoss))
	assert.Equal(t, cfg.BatchSize, len(carry))

	// the optimizer applied updates
	assert.NotEqual(t, before, net.Params())
}

func TestTrainer_Continuity(t *testing.T) {

	cfg := trainConfig(t)
	rand.Seed(6)
	net := nn.NewGRU(4, cfg.HiddenSize, 1)
	ds := testDataset(45, 4)

	trainer := NewTrainer(cfg)
	carry, _, err := trainer.Session(net, nil, ds)
	assert.NoError(t, err)

	// a second session continues the recurrence from the carried states
	first := carry[0].Copy()
	carry, _, err = trainer.Session(net, carry, ds)
	assert.NoError(t, err)
	assert.NotEqual(t, first, carry[0])
}

func TestTrainer_LearnsConstantTarget(t *testing.T) {

	cfg := trainConfig(t)
	cfg.TrainIterations = 80
	cfg.BatchSize = 1
	rand.Seed(8)
	net := nn.NewGRU(3, cfg.HiddenSize, 1)

	ds := testDataset(45, 3)
	for i := range ds.Labels {
		ds.Labels[i] = 0.5
	}

	trainer := NewTrainer(cfg)
	_, result, err := trainer.Session(net, nil, ds)
	assert.NoError(t, err)
	assert.Less(t, result.LastLoss, result.FirstLoss)
}

func TestTrainer_ConjugateGradient(t *testing.T) {

	cfg := trainConfig(t)
	cfg.Optimizer = config.ConjugateGradient
	cfg.TrainIterations = 3
	rand.Seed(9)
	net := nn.NewGRU(4, cfg.HiddenSize, 1)
	ds := testDataset(45, 4)

	trainer := NewTrainer(cfg)
	_, result, err := trainer.Session(net, nil, ds)
	assert.NoError(t, err)
	assert.Equal(t, 3, result.Iterations)
	for _, p := range net.Params() {
		assert.False(t, math.IsNaN(p))
	}
}

func TestTrainer_WindowTooSmall(t *testing.T) {

	cfg := trainConfig(t)
	cfg.BatchSize = 4
	rand.Seed(10)
	net := nn.NewGRU(4, cfg.HiddenSize, 1)
	// train region cannot fit 4 interleaved lanes
	ds := testDataset(20, 4)

	trainer := NewTrainer(cfg)
	_, _, err := trainer.Session(net, nil, ds)
	assert.True(t, errors.Is(err, pipeline.ErrDimension))
}

// nanNet turns its output to NaN after a fixed number of forward calls,
// to exercise the divergence guard.
type nanNet struct {
	params   xmath.Vector
	calls    int
	nanAfter int
}

type nanStep struct {
	n *nanNet
}

func (n *nanNet) InitState() nn.State          { return nn.NewState(1) }
func (n *nanNet) Params() xmath.Vector         { return n.params.Copy() }
func (n *nanNet) SetParams(p xmath.Vector)     { n.params = p.Copy() }
func (n *nanNet) Grads() xmath.Vector          { return xmath.Vec(len(n.params)) }
func (n *nanNet) ZeroGrads()                   {}
func (n *nanNet) InputSize() int               { return 4 }
func (n *nanNet) Clones(c int) []nn.Clone {
	cc := make([]nn.Clone, c)
	for i := range cc {
		cc[i] = &nanStep{n: n}
	}
	return cc
}

func (s *nanStep) Forward(x xmath.Vector, st nn.State) (nn.State, xmath.Vector) {
	s.n.calls++
	out := xmath.Vec(1)
	if s.n.calls > s.n.nanAfter {
		out[0] = math.NaN()
	} else {
		out[0] = 0.6
	}
	return st, out
}

func (s *nanStep) Backward(gradOut xmath.Vector, gradState nn.State) (nn.State, xmath.Vector) {
	return gradState, xmath.Vec(4)
}

func TestTrainer_DivergenceGuard(t *testing.T) {

	cfg := trainConfig(t)
	cfg.BatchSize = 1
	net := &nanNet{
		params: xmath.Vec(8).With(1, 2, 3, 4, 5, 6, 7, 8),
		// the second iteration turns NaN
		nanAfter: cfg.SeqLength,
	}
	ds := testDataset(45, 4)

	trainer := NewTrainer(cfg)
	_, result, err := trainer.Session(net, nil, ds)

	assert.True(t, errors.Is(err, ErrDiverged))
	assert.True(t, result.Diverged)
	assert.Equal(t, 1, result.Iterations)

	// parameters applied before the abort are kept intact
	for _, p := range net.params {
		assert.False(t, math.IsNaN(p))
	}
}
