// Package config loads the server environment and the three static game
// documents (character roster, match rules, scenario map). Documents are
// read once at startup; a load failure is fatal before any session exists.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mkempf/covert-duel-backend/internal/game"
)

type Server struct {
	Port         int    `env:"PORT" envDefault:"8080"`
	Verbosity    string `env:"VERBOSITY" envDefault:"info"`
	RosterPath   string `env:"ROSTER_CONFIG" envDefault:"configs/roster.json"`
	MatchPath    string `env:"MATCH_CONFIG" envDefault:"configs/match.json"`
	ScenarioPath string `env:"SCENARIO_CONFIG" envDefault:"configs/scenario.json"`
	// ArchiveDSN enables the postgres match-result archive when set.
	ArchiveDSN string `env:"ARCHIVE_DSN"`
}

// Documents bundles the parsed game configuration handed to every session.
type Documents struct {
	Roster   game.RosterConfig
	Match    game.MatchConfig
	Scenario game.ScenarioConfig
}

// LoadServer reads .env (if present) and the process environment.
func LoadServer() (Server, error) {
	_ = godotenv.Load() // optional
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// LoadDocuments parses the three JSON documents and sanity-checks them.
func LoadDocuments(cfg Server) (Documents, error) {
	var docs Documents
	docs.Match = game.DefaultMatchConfig()

	if err := readJSON(cfg.RosterPath, &docs.Roster); err != nil {
		return Documents{}, err
	}
	if err := readJSON(cfg.MatchPath, &docs.Match); err != nil {
		return Documents{}, err
	}
	if err := readJSON(cfg.ScenarioPath, &docs.Scenario); err != nil {
		return Documents{}, err
	}

	if len(docs.Roster.Characters) < 8 {
		return Documents{}, fmt.Errorf("roster %q: need at least 8 characters, have %d",
			cfg.RosterPath, len(docs.Roster.Characters))
	}
	if docs.Scenario.Width < 2 || docs.Scenario.Height < 2 {
		return Documents{}, fmt.Errorf("scenario %q: board too small (%dx%d)",
			cfg.ScenarioPath, docs.Scenario.Width, docs.Scenario.Height)
	}
	free := docs.Scenario.Width*docs.Scenario.Height - len(docs.Scenario.Walls)
	if free < len(docs.Roster.Characters) {
		return Documents{}, fmt.Errorf("scenario %q: only %d free cells for %d characters",
			cfg.ScenarioPath, free, len(docs.Roster.Characters))
	}
	return docs, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
