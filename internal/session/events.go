package session

import (
	"time"

	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/hexgrid"
	"github.com/nfrund/hexarena/internal/phase"
)

// LobbyPayload is carried by lobby_update.
type LobbyPayload struct {
	Status       domain.Status        `json:"status"`
	Participants []domain.Participant `json:"participants"`
	Threshold    int                  `json:"threshold"`
	Capacity     int                  `json:"capacity"`
}

// CountdownPayload is carried by countdown_started.
type CountdownPayload struct {
	EndsAt       time.Time `json:"ends_at"`
	Participants int       `json:"participants"`
}

// StartedPayload is carried by battle_started.
type StartedPayload struct {
	Schedule     phase.Schedule       `json:"schedule"`
	Participants []domain.Participant `json:"participants"`
	Tiles        []hexgrid.Tile       `json:"tiles"`
	FirstEpochAt time.Time            `json:"first_epoch_at"`
}

// CancelledPayload is carried by battle_cancelled.
type CancelledPayload struct {
	Reason string `json:"reason,omitempty"`
}

// StatePayload is carried by state_snapshot.
type StatePayload struct {
	Snapshot
	Phase PhaseInfo `json:"phase"`
}
