package game

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed strategies.yaml
var strategiesYAML []byte

type Color string

const (
	Blue Color = "blue"
	Red  Color = "red"
)

// Strategy is one of the fixed labels the model uses to classify a hint.
type Strategy struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	NameEn      string `yaml:"name_en" json:"nameEn"`
	Description string `yaml:"description" json:"description"`
	Example     string `yaml:"example" json:"example"`
	Color       Color  `yaml:"color" json:"color"`
	Icon        string `yaml:"icon" json:"icon"`
}

var catalog = mustLoadStrategies(strategiesYAML)

func loadStrategies(data []byte) ([]Strategy, error) {
	var doc struct {
		Strategies []Strategy `yaml:"strategies"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse strategies: %w", err)
	}
	if len(doc.Strategies) == 0 {
		return nil, errors.New("parse strategies: empty catalog")
	}

	seen := make(map[string]bool, len(doc.Strategies))
	for _, s := range doc.Strategies {
		if s.ID == "" || s.Name == "" || s.NameEn == "" {
			return nil, fmt.Errorf("parse strategies: incomplete entry %+v", s)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("parse strategies: duplicate id %q", s.ID)
		}
		if s.Color != Blue && s.Color != Red {
			return nil, fmt.Errorf("parse strategies: %s has color %q", s.ID, s.Color)
		}
		seen[s.ID] = true
	}

	return doc.Strategies, nil
}

func mustLoadStrategies(data []byte) []Strategy {
	s, err := loadStrategies(data)
	if err != nil {
		panic(err)
	}
	return s
}

// Strategies returns the catalog in display order.
func Strategies() []Strategy {
	out := make([]Strategy, len(catalog))
	copy(out, catalog)
	return out
}

// LookupStrategy finds a strategy by id, Japanese name or English name.
// Ids and English names match case-insensitively.
func LookupStrategy(key string) (Strategy, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Strategy{}, false
	}

	for _, s := range catalog {
		if s.ID == key || s.Name == key {
			return s, true
		}
	}
	for _, s := range catalog {
		if strings.EqualFold(s.ID, key) || strings.EqualFold(s.NameEn, key) {
			return s, true
		}
	}

	return Strategy{}, false
}
