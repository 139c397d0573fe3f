package server

import (
	"errors"
	"fmt"

	"github.com/drakos74/free-brain/internal/buffer"
	"github.com/drakos74/free-brain/internal/config"
	"github.com/drakos74/free-brain/internal/ensemble"
	brainmath "github.com/drakos74/free-brain/internal/math"
	"github.com/drakos74/free-brain/internal/metrics"
	"github.com/drakos74/free-brain/internal/nn"
	"github.com/drakos74/free-brain/internal/pipeline"
	"github.com/drakos74/free-brain/internal/storage"
	"github.com/drakos74/free-brain/internal/train"
	"github.com/rs/zerolog/log"
)

// ErrNotInitialized signals a data command received before the init handshake.
var ErrNotInitialized = errors.New("server not initialized")

// rawCandleFields is the raw field count per instrument when full candles are streamed.
const rawCandleFields = 4

// Engine is the protocol state machine behind a single connection.
// It starts uninitialized, the init handshake sizes the sample window and
// the model ensemble, after which every ingested sample may trigger a
// training session and is answered with a prediction.
type Engine struct {
	cfg     config.Config
	trainer *train.Trainer
	store   storage.Persistence

	window     *buffer.Window
	pipe       *pipeline.Pipeline
	ens        *ensemble.Ensemble
	evaluators []*train.Evaluator
}

// NewEngine creates an uninitialized engine without persistence.
func NewEngine(cfg config.Config) *Engine {
	return &Engine{
		cfg:     cfg,
		trainer: train.NewTrainer(cfg),
		store:   storage.NewVoid(),
	}
}

// WithStore persists the ensemble after every training session and
// restores it on the init handshake when a matching snapshot exists.
func (e *Engine) WithStore(store storage.Persistence) *Engine {
	e.store = store
	return e
}

// snapshotKey ties a snapshot to the announced raw row width,
// a reconfigured client never restores an incompatible ensemble.
func (e *Engine) snapshotKey() storage.Key {
	return storage.Key{
		Name:  "ensemble",
		Label: fmt.Sprintf("%d", e.window.Width()),
	}
}

// Ready reports whether the init handshake has completed.
func (e *Engine) Ready() bool {
	return e.window != nil
}

// Handle processes one decoded message and returns the reply frame,
// empty when the command produces none.
func (e *Engine) Handle(m Message) (string, error) {
	switch m.Kind {
	case Init:
		return e.handleInit(m)
	case SingleInput:
		return e.handleSingle(m)
	case MultiInputs:
		return "", e.handleMulti(m)
	}
	return "", fmt.Errorf("kind %d: %w", m.Kind, ErrUnknownCommand)
}

// handleInit sizes the window and the ensemble for the announced raw row width
// and asks the client for the training window. A repeated init resets everything.
func (e *Engine) handleInit(m Message) (string, error) {
	numSymbols, err := e.numSymbols(m.NumRawInputs)
	if err != nil {
		return "", err
	}

	cfg := e.cfg
	e.window = buffer.NewWindow(cfg.RequiredWindow(), m.NumRawInputs)
	e.pipe = pipeline.New(cfg, numSymbols)
	e.ens = ensemble.New(cfg, func(inputSize int) nn.Network {
		return nn.NewGRU(inputSize, cfg.HiddenSize, 1)
	}, e.pipe.Width())
	e.evaluators = make([]*train.Evaluator, cfg.EnsembleSize)
	for i := range e.evaluators {
		e.evaluators[i] = train.NewEvaluator(cfg)
	}

	var snap ensemble.Snapshot
	if err := e.store.Load(e.snapshotKey(), &snap); err == nil {
		if err := e.ens.Restore(snap); err != nil {
			log.Warn().Err(err).Msg("ignoring incompatible snapshot")
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		log.Warn().Err(err).Msg("could not load snapshot")
	}

	log.Info().
		Int("raw-inputs", m.NumRawInputs).
		Int("symbols", numSymbols).
		Int("feature-width", e.pipe.Width()).
		Int("window", e.window.Len()).
		Int("trained", e.ens.Trained()).
		Msg("initialized")

	return RequestSamples(cfg.TrainSize), nil
}

// numSymbols derives the instrument count from the announced raw row width,
// accounting for the two leading temporal fields.
func (e *Engine) numSymbols(numRawInputs int) (int, error) {
	fields := numRawInputs - 2
	if fields < 1 {
		return 0, fmt.Errorf("%d raw inputs: %w", numRawInputs, ErrMalformed)
	}
	if e.cfg.CloseOnly {
		return fields, nil
	}
	if fields%rawCandleFields != 0 {
		return 0, fmt.Errorf("%d candle fields are not a multiple of %d: %w",
			fields, rawCandleFields, ErrMalformed)
	}
	return fields / rawCandleFields, nil
}

// handleSingle ingests one sample, runs a training session when due and
// always replies with a prediction for the sample timetag.
func (e *Engine) handleSingle(m Message) (string, error) {
	if !e.Ready() {
		return "", fmt.Errorf("single_input: %w", ErrNotInitialized)
	}
	if err := e.window.Push(m.Timestamp, m.Fields); err != nil {
		return "", fmt.Errorf("%s: %w", err.Error(), ErrMalformed)
	}
	metrics.Observer.IncrementSamples(cmdSingleInput, 1)

	e.maybeTrain()

	// no direction until the window has filled with real samples
	centered := 0.0
	if e.window.Full() {
		features, _, err := e.pipe.Features(e.window)
		if err != nil {
			return "", err
		}
		centered = e.ens.Predict(features[len(features)-1])
	}
	metrics.Observer.IncrementPredictions()

	return Prediction(m.Timestamp, brainmath.Uncenter(centered)), nil
}

// handleMulti ingests a batch of samples without replying.
// A batch larger than the window is rejected, leaving the window unchanged.
func (e *Engine) handleMulti(m Message) error {
	if !e.Ready() {
		return fmt.Errorf("multi_inputs: %w", ErrNotInitialized)
	}
	if err := e.window.Append(m.Times, m.Rows); err != nil {
		return err
	}
	metrics.Observer.IncrementSamples(cmdMultiInputs, len(m.Rows))

	e.maybeTrain()
	return nil
}

// maybeTrain runs one training session and an evaluation walk on the next
// round-robin member when the sample count hits the training schedule.
// Failures are logged and absorbed, the stream keeps flowing.
func (e *Engine) maybeTrain() {
	if !e.window.Full() || !e.ens.ShouldTrain(e.window.Received()) {
		return
	}

	ds, err := e.pipe.Dataset(e.window)
	if err != nil {
		log.Warn().Err(err).Msg("skipping training session")
		return
	}

	m := e.ens.Next()
	states, result, err := e.trainer.Session(m.Net, m.TrainStates, ds)
	m.TrainStates = states
	if err != nil {
		if errors.Is(err, train.ErrDiverged) {
			metrics.Observer.IncrementDivergences(m.ID)
			log.Warn().Err(err).Str("member", m.ID).Msg("training session diverged")
		} else {
			log.Error().Err(err).Str("member", m.ID).Msg("training session failed")
			return
		}
	}
	if result.Iterations == 0 {
		return
	}
	m.Sessions++
	metrics.Observer.IncrementSessions(m.ID)

	state, summary := e.evaluators[m.Index-1].Run(m.Net, m.EvalState, ds)
	m.EvalState = state
	metrics.Observer.TrackEvaluation(summary.EMALoss, summary.EMAAccuracy)

	if err := e.store.Store(e.snapshotKey(), e.ens.Snapshot()); err != nil {
		log.Warn().Err(err).Msg("could not store snapshot")
	}

	log.Info().
		Str("member", m.ID).
		Int("index", m.Index).
		Int("sessions", m.Sessions).
		Int("trained", e.ens.Trained()).
		Float64("first-loss", result.FirstLoss).
		Float64("last-loss", result.LastLoss).
		Float64("ema-loss", summary.EMALoss).
		Float64("ema-accuracy", summary.EMAAccuracy).
		Msg("trained")
}
