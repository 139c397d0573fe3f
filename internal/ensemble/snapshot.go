package ensemble

import (
	"fmt"

	"github.com/drakos74/go-ex-machina/xmath"
	"github.com/rs/zerolog/log"
)

// MemberSnapshot is the persisted form of one constructed member.
// Only the parameters and the session count survive a restart,
// the recurrent carry states are rebuilt from zero.
type MemberSnapshot struct {
	ID       string    `json:"id"`
	Index    int       `json:"index"`
	Sessions int       `json:"sessions"`
	Params   []float64 `json:"params"`
}

// Snapshot is the persisted form of the whole ensemble.
type Snapshot struct {
	Members []MemberSnapshot `json:"members"`
}

// Snapshot captures the constructed members for persistence.
func (e *Ensemble) Snapshot() Snapshot {
	members := make([]MemberSnapshot, 0, len(e.members))
	for _, m := range e.members {
		if m.Net == nil {
			continue
		}
		members = append(members, MemberSnapshot{
			ID:       m.ID,
			Index:    m.Index,
			Sessions: m.Sessions,
			Params:   m.Net.Params(),
		})
	}
	return Snapshot{Members: members}
}

// Restore rebuilds the members from a snapshot, replacing any current state.
// A snapshot taken with a different topology is rejected.
func (e *Ensemble) Restore(s Snapshot) error {
	for _, ms := range s.Members {
		if ms.Index < 1 || ms.Index > len(e.members) {
			return fmt.Errorf("member index %d for size %d", ms.Index, len(e.members))
		}
		net := e.construct(e.inputSize)
		if len(net.Params()) != len(ms.Params) {
			return fmt.Errorf("member %d with %d params, expected %d",
				ms.Index, len(ms.Params), len(net.Params()))
		}
		net.SetParams(xmath.Vector(ms.Params))

		m := e.members[ms.Index-1]
		m.ID = ms.ID
		m.Net = net
		m.TrainStates = nil
		m.EvalState = net.InitState()
		m.Sessions = ms.Sessions
	}
	log.Info().Int("members", len(s.Members)).Msg("restored ensemble")
	return nil
}
