package session

import (
	"time"

	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/epoch"
	"github.com/nfrund/hexarena/internal/phase"
)

// Snapshot is the complete, persisted state of one battle. Before
// activation State holds only the joined participants and a nil arena.
type Snapshot struct {
	ID     string             `json:"id"`
	Status domain.Status      `json:"status"`
	Config domain.LobbyConfig `json:"config"`
	State  epoch.State        `json:"state"`

	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	CountdownEndsAt *time.Time `json:"countdown_ends_at,omitempty"`

	// NextWakeAt is the deadline of the single pending wake-up. WakeToken
	// changes every time a wake-up is scheduled; a wake carrying an older
	// token is ignored.
	NextWakeAt *time.Time `json:"next_wake_at,omitempty"`
	WakeToken  uint64     `json:"wake_token"`

	Winner string `json:"winner,omitempty"`

	// Seq is the sequence number of the last emitted event.
	Seq uint64 `json:"seq"`
	// JoinSeq is the join order handed to the next participant.
	JoinSeq int `json:"join_seq"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.Config.Assets = append([]string(nil), s.Config.Assets...)
	c.State = s.State.Clone()
	c.StartedAt = cloneTime(s.StartedAt)
	c.EndedAt = cloneTime(s.EndedAt)
	c.CountdownEndsAt = cloneTime(s.CountdownEndsAt)
	c.NextWakeAt = cloneTime(s.NextWakeAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time { return &t }

// PhaseInfo describes where a battle is in its phase schedule.
type PhaseInfo struct {
	Phase       phase.Phase `json:"phase"`
	HazardRing  int         `json:"hazard_ring"`
	Epoch       int         `json:"epoch"`
	TotalEpochs int         `json:"total_epochs"`
	Combat      bool        `json:"combat"`
}

// PhaseInfo reports the phase of the next epoch to run, or of the last one
// once the battle is over. Battles that have not started report LOOT.
func (s Snapshot) PhaseInfo() PhaseInfo {
	info := PhaseInfo{Phase: phase.Loot, Epoch: s.State.Epoch, TotalEpochs: s.State.Schedule.Total}
	switch {
	case s.State.Arena == nil:
	case s.Status == domain.StatusActive:
		info.Phase = s.State.Phase()
	default:
		info.Phase = phase.CurrentPhase(max(s.State.Epoch, 1), s.State.Schedule)
	}
	info.HazardRing = phase.HazardRing(info.Phase)
	info.Combat = phase.CombatEnabled(info.Phase)
	return info
}
