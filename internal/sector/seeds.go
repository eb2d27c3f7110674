package sector

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/marketpulse/backend/internal/storage/models"
)

//go:embed data/sectors.yaml
var defaultSeeds []byte

type seed struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Tickers     []string `yaml:"tickers"`
}

// DefaultSeeds returns the built-in sector catalogue.
func DefaultSeeds() ([]models.Sector, error) {
	return ParseSeeds(defaultSeeds)
}

func ParseSeeds(data []byte) ([]models.Sector, error) {
	var seeds []seed
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("failed to parse sector seeds: %w", err)
	}

	owner := make(map[string]string)
	sectors := make([]models.Sector, 0, len(seeds))
	for _, s := range seeds {
		if s.Name == "" {
			return nil, fmt.Errorf("sector seed without a name")
		}
		for _, t := range s.Tickers {
			if prev, ok := owner[t]; ok {
				return nil, fmt.Errorf("ticker %s listed under both %s and %s", t, prev, s.Name)
			}
			owner[t] = s.Name
		}
		sectors = append(sectors, models.Sector{
			Name:        s.Name,
			Description: s.Description,
			Keywords:    s.Keywords,
			Tickers:     s.Tickers,
		})
	}
	return sectors, nil
}
