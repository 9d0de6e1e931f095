package game

import "github.com/google/uuid"

type ActionKind string

const (
	ActionMove   ActionKind = "move"
	ActionAttack ActionKind = "attack"
	ActionGadget ActionKind = "gadget"
	ActionRetire ActionKind = "retire"
)

// Action is one unit's move for its turn. Target is ignored for retire;
// Gadget is set only for gadget actions.
type Action struct {
	CharacterID uuid.UUID  `json:"character_id"`
	Kind        ActionKind `json:"kind"`
	Target      Position   `json:"target"`
	Gadget      GadgetKind `json:"gadget,omitempty"`
}

// Operation is the broadcast record of an executed (or failed) action.
type Operation struct {
	Action  Action `json:"action"`
	Success bool   `json:"success"`
}
