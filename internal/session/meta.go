package session

import (
	"github.com/google/uuid"

	"github.com/mkempf/covert-duel-backend/internal/game"
)

// Info keys a MetaInformationRequest may name.
const (
	KeyScenarioConfig = "scenario_config"
	KeyMatchConfig    = "match_config"
	KeyRosterConfig   = "roster_config"
	KeyFactionPlayer1 = "faction_player1"
	KeyFactionPlayer2 = "faction_player2"
	KeyFactionNeutral = "faction_neutral"
	KeyGadgetsPlayer1 = "gadgets_player1"
	KeyGadgetsPlayer2 = "gadgets_player2"
)

// buildMetaReply answers a scoped information request. Configuration keys
// are public; faction-scoped keys are answered only for the requester's own
// faction, and neutral data only for spectators. Keys the requester is not
// entitled to (or that have no data yet) are omitted, not errored.
func (m *Machine) buildMetaReply(p *participant, keys []string) map[string]any {
	reply := make(map[string]any, len(keys))
	for _, key := range keys {
		switch key {
		case KeyScenarioConfig:
			reply[key] = m.docs.Scenario
		case KeyMatchConfig:
			reply[key] = m.docs.Match
		case KeyRosterConfig:
			reply[key] = m.docs.Roster

		case KeyFactionPlayer1:
			if p.faction == game.FactionPlayer1 {
				reply[key] = m.factionCharacters(game.FactionPlayer1)
			}
		case KeyFactionPlayer2:
			if p.faction == game.FactionPlayer2 {
				reply[key] = m.factionCharacters(game.FactionPlayer2)
			}
		case KeyFactionNeutral:
			if p.spectator {
				reply[key] = m.factionCharacters(game.FactionNeutral)
			}

		case KeyGadgetsPlayer1:
			if p.faction == game.FactionPlayer1 {
				reply[key] = m.draft.Selections(game.FactionPlayer1).Gadgets
			}
		case KeyGadgetsPlayer2:
			if p.faction == game.FactionPlayer2 {
				reply[key] = m.draft.Selections(game.FactionPlayer2).Gadgets
			}
		}
	}
	return reply
}

// factionCharacters lists the character ids currently belonging to f,
// preferring live world state over the draft-time assignment.
func (m *Machine) factionCharacters(f game.Faction) []uuid.UUID {
	ids := []uuid.UUID{}
	if m.world != nil {
		for _, id := range m.world.Living() {
			if m.world.Characters[id].Faction == f {
				ids = append(ids, id)
			}
		}
		return ids
	}
	if f == game.FactionNeutral {
		// Before the draft resolves, nothing is neutral yet.
		if m.draft == nil || !m.draft.ChoiceComplete() {
			return ids
		}
		for id, owner := range m.draft.FactionAssignment() {
			if owner == game.FactionNeutral {
				ids = append(ids, id)
			}
		}
		return ids
	}
	if m.draft != nil {
		ids = append(ids, m.draft.Selections(f).Characters...)
	}
	return ids
}
