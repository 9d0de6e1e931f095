package session

import (
	"github.com/google/uuid"

	"github.com/mkempf/covert-duel-backend/internal/game"
	"github.com/mkempf/covert-duel-backend/internal/protocol"
)

// Msg is anything the session actor accepts on its inbox. All session state
// is mutated from the loop goroutine only.
type Msg interface{ isSessionMsg() }

// Join registers a connection's outbox. The participant stays anonymous
// until their Hello arrives.
type Join struct {
	ConnID string
	Outbox chan protocol.ServerMessage
}

func (Join) isSessionMsg() {}

// FromClient carries one decoded protocol message from a connection.
type FromClient struct {
	ConnID string
	Msg    protocol.ClientMessage
}

func (FromClient) isSessionMsg() {}

// Leave reports a closed connection.
type Leave struct{ ConnID string }

func (Leave) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

// GetView reflects internal state without data races; test-only.
type GetView struct{ Reply chan View }

func (GetView) isSessionMsg() {}

// pauseExpired is the pause deadline firing. Stale generations are dropped.
type pauseExpired struct{ gen int }

func (pauseExpired) isSessionMsg() {}

type View struct {
	Phase     Phase
	SessionID uuid.UUID
	Seats     map[game.Faction]string
	Clients   int
	Paused    bool
	Round     int
}

// Result summarizes a finished session for the hub and the archive.
type Result struct {
	SessionID uuid.UUID
	Winner    game.Faction
	Reason    string
	Rounds    int
}
