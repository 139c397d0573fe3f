package ensemble

import (
	"github.com/drakos74/free-brain/internal/config"
	brainmath "github.com/drakos74/free-brain/internal/math"
	"github.com/drakos74/free-brain/internal/nn"
	"github.com/drakos74/go-ex-machina/xmath"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Member is one independently parameterised network of the ensemble.
// It owns its training-carry states, its evaluation-carry state and the
// count of completed training sessions.
type Member struct {
	ID          string
	Index       int
	Net         nn.Network
	TrainStates []nn.State
	EvalState   nn.State
	Sessions    int
}

// Ready reports whether the member has been trained at least once.
// Only ready members contribute to the ensemble prediction.
func (m *Member) Ready() bool {
	return m.Sessions > 0
}

// Ensemble is a fixed-size ordered collection of members with a round-robin
// cursor deciding which member trains on each triggered session.
type Ensemble struct {
	cfg       config.Config
	construct nn.Construct
	inputSize int
	members   []*Member
	cursor    int
}

// New creates an ensemble of the configured size.
// Members are constructed lazily on their first training turn.
func New(cfg config.Config, construct nn.Construct, inputSize int) *Ensemble {
	members := make([]*Member, cfg.EnsembleSize)
	for i := range members {
		members[i] = &Member{
			ID:    uuid.New().String(),
			Index: i + 1,
		}
	}
	return &Ensemble{
		cfg:       cfg,
		construct: construct,
		inputSize: inputSize,
		members:   members,
	}
}

// Size returns the fixed number of members.
func (e *Ensemble) Size() int {
	return len(e.members)
}

// ShouldTrain reports whether the given sample total triggers a training session.
func (e *Ensemble) ShouldTrain(received int) bool {
	required := e.cfg.RequiredWindow()
	if received < required {
		return false
	}
	return (received-required)%e.cfg.TrainFrequency == 0
}

// Next advances the round-robin cursor, wrapping to the first member,
// and returns the member to train, constructing it on first use.
func (e *Ensemble) Next() *Member {
	e.cursor = e.cursor%len(e.members) + 1
	m := e.members[e.cursor-1]
	if m.Net == nil {
		m.Net = e.construct(e.inputSize)
		m.EvalState = m.Net.InitState()
		log.Info().
			Str("member", m.ID).
			Int("index", m.Index).
			Msg("constructed ensemble member")
	}
	return m
}

// Trained returns the number of members with at least one completed session.
func (e *Ensemble) Trained() int {
	trained := 0
	for _, m := range e.members {
		if m.Ready() {
			trained++
		}
	}
	return trained
}

// Predict averages the centered output of all ready members for the given
// feature row. Untrained members contribute nothing. With no ready member
// the prediction is 0.0, e.g. no direction.
func (e *Ensemble) Predict(x xmath.Vector) float64 {
	sum := 0.0
	ready := 0
	for _, m := range e.members {
		if !m.Ready() {
			continue
		}
		_, out := m.Net.Clones(1)[0].Forward(x, m.EvalState.Copy())
		sum += brainmath.Center(out[0])
		ready++
	}
	if ready == 0 {
		return 0.0
	}
	return sum / float64(ready)
}
