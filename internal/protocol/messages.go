// Package protocol defines the message shapes exchanged with clients. The
// websocket layer owns framing and JSON; the session machine only ever sees
// these structs.
package protocol

import (
	"github.com/google/uuid"

	"github.com/mkempf/covert-duel-backend/internal/game"
)

// Client -> server message types.
const (
	TypeHello           = "Hello"
	TypeItemChoice      = "ItemChoice"
	TypeEquipmentChoice = "EquipmentChoice"
	TypeAction          = "Action"
	TypePauseRequest    = "PauseRequest"
	TypeMetaRequest     = "MetaInformationRequest"
	TypeLeave           = "Leave"
)

// Server -> client message types.
const (
	TypeHelloReply           = "HelloReply"
	TypeGameStarted          = "GameStarted"
	TypeItemChoiceOffer      = "ItemChoiceOffer"
	TypeEquipmentChoiceOffer = "EquipmentChoiceOffer"
	TypeRoundStatus          = "RoundStatus"
	TypeMetaReply            = "MetaInformationReply"
	TypeGameResult           = "GameResult"
	TypeGamePause            = "GamePause"
	TypeLeft                 = "Left"
	TypeError                = "Error"
)

// Roles a Hello can request.
const (
	RolePlayer    = "player"
	RoleSpectator = "spectator"
)

type ClientMessage struct {
	Type string `json:"type"`

	// Hello
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`

	// ItemChoice: exactly one of the two.
	CharacterID *uuid.UUID       `json:"character_id,omitempty"`
	GadgetKind  *game.GadgetKind `json:"gadget_kind,omitempty"`

	// EquipmentChoice
	Equipment map[uuid.UUID][]game.GadgetKind `json:"equipment,omitempty"`

	// Action
	Action *game.Action `json:"action,omitempty"`

	// PauseRequest
	Pause bool `json:"pause,omitempty"`

	// MetaInformationRequest
	Keys []string `json:"keys,omitempty"`
}

// CharacterSnapshot is the per-unit slice of a world snapshot.
type CharacterSnapshot struct {
	ID      uuid.UUID     `json:"id"`
	Name    string        `json:"name"`
	Faction game.Faction  `json:"faction"`
	Pos     game.Position `json:"pos"`
	HP      int           `json:"hp"`
	Gadgets []game.Gadget `json:"gadgets,omitempty"`
}

type WorldSnapshot struct {
	Round      int                 `json:"round"`
	Characters []CharacterSnapshot `json:"characters"`
}

type PlayerInfo struct {
	Faction game.Faction `json:"faction"`
	Name    string       `json:"name"`
}

type ServerMessage struct {
	Type string `json:"type"`

	// HelloReply / GameStarted
	SessionID string               `json:"session_id,omitempty"`
	Assigned  game.Faction         `json:"assigned,omitempty"`
	Players   []PlayerInfo         `json:"players,omitempty"`
	Match     *game.MatchConfig    `json:"match_config,omitempty"`
	Scenario  *game.ScenarioConfig `json:"scenario_config,omitempty"`

	// ItemChoiceOffer / EquipmentChoiceOffer
	Characters []uuid.UUID       `json:"characters,omitempty"`
	Gadgets    []game.GadgetKind `json:"gadgets,omitempty"`

	// RoundStatus
	ActiveCharacter *uuid.UUID       `json:"active_character,omitempty"`
	ActiveFaction   game.Faction     `json:"active_faction,omitempty"`
	Operations      []game.Operation `json:"operations,omitempty"`
	World           *WorldSnapshot   `json:"world,omitempty"`

	// MetaInformationReply: key -> value, unauthorized keys omitted.
	Meta map[string]any `json:"meta,omitempty"`

	// GameResult
	Winner game.Faction `json:"winner,omitempty"`
	Reason string       `json:"reason,omitempty"`

	// GamePause. A pointer so the resume broadcast still serializes an
	// explicit "paused": false instead of omitting the field.
	Paused *bool `json:"paused,omitempty"`

	// Left
	Left string `json:"left,omitempty"`

	// Error
	Error string `json:"error,omitempty"`
}

// SnapshotWorld flattens the world for broadcast.
func SnapshotWorld(w *game.World) *WorldSnapshot {
	snap := &WorldSnapshot{Round: w.Round}
	for _, id := range w.Living() {
		c := w.Characters[id]
		snap.Characters = append(snap.Characters, CharacterSnapshot{
			ID:      c.ID,
			Name:    c.Name,
			Faction: c.Faction,
			Pos:     c.Pos,
			HP:      c.HP,
			Gadgets: c.Gadgets,
		})
	}
	return snap
}
