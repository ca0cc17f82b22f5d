/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package poker

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPresetID is used for new sessions, joined sessions and repairs.
const DefaultPresetID = "fibonacci"

// Catalog is the read-only list of card set presets.
type Catalog struct {
	presets []Preset
}

// NewCatalog returns the built-in presets followed by extra. Every preset
// must have an id, at least one card, and unique card values.
func NewCatalog(extra ...Preset) (*Catalog, error) {
	all := append(builtinPresets(), extra...)

	seen := make(map[string]bool, len(all))
	for i := range all {
		p := &all[i]
		p.ID = strings.TrimSpace(p.ID)
		if err := validatePreset(*p); err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate preset id %q", p.ID)
		}
		seen[p.ID] = true

		p.Cards = cloneCards(p.Cards)
		for j := range p.Cards {
			if p.Cards[j].Label == "" {
				p.Cards[j].Label = p.Cards[j].Value
			}
		}
	}

	return &Catalog{presets: all}, nil
}

func validatePreset(p Preset) error {
	if p.ID == "" {
		return &ValidationError{Field: "id", Message: "preset id is required"}
	}
	if len(p.Cards) == 0 {
		return &ValidationError{Field: "cards", Message: fmt.Sprintf("preset %q has no cards", p.ID)}
	}

	values := make(map[string]bool, len(p.Cards))
	for _, c := range p.Cards {
		if strings.TrimSpace(c.Value) == "" {
			return &ValidationError{Field: "cards", Message: fmt.Sprintf("preset %q has a card without a value", p.ID)}
		}
		if values[c.Value] {
			return &ValidationError{Field: "cards", Message: fmt.Sprintf("preset %q repeats card %q", p.ID, c.Value)}
		}
		values[c.Value] = true
	}

	return nil
}

// Presets returns every preset in catalog order.
func (c *Catalog) Presets() []Preset {
	out := make([]Preset, len(c.presets))
	for i, p := range c.presets {
		p.Cards = cloneCards(p.Cards)
		out[i] = p
	}
	return out
}

// Lookup finds a preset by id.
func (c *Catalog) Lookup(id string) (Preset, bool) {
	for _, p := range c.presets {
		if p.ID == id {
			p.Cards = cloneCards(p.Cards)
			return p, true
		}
	}
	return Preset{}, false
}

func (c *Catalog) Default() Preset {
	p, _ := c.Lookup(DefaultPresetID)
	return p
}

// LoadPresets decodes a YAML list of presets, e.g.
//
//	- id: hours
//	  name: Hours
//	  cards:
//	    - value: "1"
//	      label: 1h
//	    - value: "?"
//	      special: true
func LoadPresets(r io.Reader) ([]Preset, error) {
	var presets []Preset

	if err := yaml.NewDecoder(r).Decode(&presets); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode card sets: %w", err)
	}

	for _, p := range presets {
		if err := validatePreset(p); err != nil {
			return nil, err
		}
	}

	return presets, nil
}
