// Package cards holds the weighted deck spent currency is drawn against.
package cards

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed deck.yaml
var defaultDeck []byte

var ErrInvalidDeck = errors.New("invalid deck")

type Card struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Weight int    `yaml:"weight"`
}

// Deck is immutable once parsed.
type Deck struct {
	Cost  int64  `yaml:"cost"`
	Cards []Card `yaml:"cards"`

	total int
	byID  map[string]int
}

// Parse decodes and validates a YAML deck. A missing cost means 1.
func Parse(data []byte) (*Deck, error) {
	var d Deck
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDeck, err)
	}
	if d.Cost == 0 {
		d.Cost = 1
	}
	if d.Cost < 0 {
		return nil, fmt.Errorf("%w: cost must be positive", ErrInvalidDeck)
	}
	if len(d.Cards) == 0 {
		return nil, fmt.Errorf("%w: no cards", ErrInvalidDeck)
	}
	d.byID = make(map[string]int, len(d.Cards))
	for i, card := range d.Cards {
		id := strings.TrimSpace(card.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: card %d has no id", ErrInvalidDeck, i)
		}
		if card.Weight <= 0 {
			return nil, fmt.Errorf("%w: card %q weight must be positive", ErrInvalidDeck, id)
		}
		if _, dup := d.byID[id]; dup {
			return nil, fmt.Errorf("%w: duplicate card %q", ErrInvalidDeck, id)
		}
		if card.Name == "" {
			d.Cards[i].Name = id
		}
		d.Cards[i].ID = id
		d.byID[id] = i
		d.total += card.Weight
	}
	return &d, nil
}

// Load reads a deck file; an empty path yields the built-in deck.
func Load(path string) (*Deck, error) {
	if path == "" {
		return Parse(defaultDeck)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deck: %w", err)
	}
	return Parse(data)
}

// Draw picks a card with probability proportional to its weight.
func (d *Deck) Draw(rng *rand.Rand) Card {
	var n int
	if rng == nil {
		n = rand.IntN(d.total)
	} else {
		n = rng.IntN(d.total)
	}
	for _, card := range d.Cards {
		if n < card.Weight {
			return card
		}
		n -= card.Weight
	}
	return d.Cards[len(d.Cards)-1]
}

// Name returns the display name for a card id, or the id itself when the
// card is not in this deck.
func (d *Deck) Name(id string) string {
	if i, ok := d.byID[id]; ok {
		return d.Cards[i].Name
	}
	return id
}
