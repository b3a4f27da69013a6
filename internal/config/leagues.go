package config

import (
	"fmt"
	"os"
	"strings"

	"oddsline/ingestion/internal/models"

	"gopkg.in/yaml.v3"
)

// leagueCatalog is the on-disk shape of LEAGUES_FILE:
//
//	leagues:
//	  - code: NFL
//	    sport_key: americanfootball_nfl
type leagueCatalog struct {
	Leagues []models.League `yaml:"leagues"`
}

// Leagues returns the tracked leagues, read from LEAGUES_FILE when set
func (c *Config) Leagues() ([]models.League, error) {
	if c.LeaguesFile == "" {
		return models.DefaultLeagues(), nil
	}

	data, err := os.ReadFile(c.LeaguesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read leagues file: %w", err)
	}

	return ParseLeagues(data)
}

// ParseLeagues decodes and validates a YAML league catalog
func ParseLeagues(data []byte) ([]models.League, error) {
	var catalog leagueCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse leagues file: %w", err)
	}

	if len(catalog.Leagues) == 0 {
		return nil, fmt.Errorf("leagues file lists no leagues")
	}

	seen := make(map[string]bool, len(catalog.Leagues))
	for i, l := range catalog.Leagues {
		if l.Code == "" || l.SportKey == "" {
			return nil, fmt.Errorf("league %d: code and sport_key are required", i)
		}
		code := strings.ToUpper(l.Code)
		if seen[code] {
			return nil, fmt.Errorf("league %s listed twice", code)
		}
		seen[code] = true
		catalog.Leagues[i].Code = code
	}

	return catalog.Leagues, nil
}
