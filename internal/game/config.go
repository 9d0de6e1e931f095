package game

// MatchConfig carries the gameplay numbers loaded from the match rules
// document. All fields have working defaults via DefaultMatchConfig.
type MatchConfig struct {
	MaxRounds         int `json:"max_rounds"`
	PauseLimitSeconds int `json:"pause_limit_seconds"`
	GadgetDamage      int `json:"gadget_damage"`
	GadgetRange       int `json:"gadget_range"`
}

func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		MaxRounds:         50,
		PauseLimitSeconds: 60,
		GadgetDamage:      35,
		GadgetRange:       3,
	}
}

// ScenarioConfig describes the board: a grid with blocked cells.
type ScenarioConfig struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Walls  []Position `json:"walls,omitempty"`
}

// RosterConfig lists the playable character templates.
type RosterConfig struct {
	Characters []CharacterTemplate `json:"characters"`
}
