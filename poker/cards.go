/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package poker

import (
	"fmt"
	"strings"
)

// Card is a single vote token. Value is what gets recorded, Label is what
// gets shown.
type Card struct {
	Value     string `json:"value" yaml:"value"`
	Label     string `json:"label" yaml:"label"`
	IsSpecial bool   `json:"isSpecial,omitempty" yaml:"special,omitempty"`
}

// Preset is a named, ordered card set offered by the catalog.
type Preset struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Cards       []Card `json:"cards" yaml:"cards"`
}

func specialCards() []Card {
	return []Card{
		{Value: "?", Label: "?", IsSpecial: true},
		{Value: "☕", Label: "Break", IsSpecial: true},
		{Value: "∞", Label: "Too Big", IsSpecial: true},
	}
}

func numericCards(values ...string) []Card {
	cards := make([]Card, 0, len(values)+3)
	for _, v := range values {
		cards = append(cards, Card{Value: v, Label: v})
	}
	return append(cards, specialCards()...)
}

func builtinPresets() []Preset {
	modified := numericCards("0", "0.5", "1", "2", "3", "5", "8", "13", "20", "40", "100")
	modified[1].Label = "½"

	return []Preset{
		{
			ID:          "fibonacci",
			Name:        "Fibonacci",
			Description: "Classic Fibonacci sequence (0, 1, 2, 3, 5, 8, 13, 21, 34, 55, 89)",
			Cards:       numericCards("0", "1", "2", "3", "5", "8", "13", "21", "34", "55", "89"),
		},
		{
			ID:          "modified-fibonacci",
			Name:        "Modified Fibonacci",
			Description: "Modified Fibonacci with half points (0, 0.5, 1, 2, 3, 5, 8, 13, 20, 40, 100)",
			Cards:       modified,
		},
		{
			ID:          "t-shirt",
			Name:        "T-Shirt Sizes",
			Description: "T-shirt sizing (XS, S, M, L, XL, XXL)",
			Cards:       numericCards("XS", "S", "M", "L", "XL", "XXL"),
		},
		{
			ID:          "powers-of-2",
			Name:        "Powers of 2",
			Description: "Powers of 2 sequence (1, 2, 4, 8, 16, 32, 64)",
			Cards:       numericCards("0", "1", "2", "4", "8", "16", "32", "64"),
		},
		{
			ID:          "linear",
			Name:        "Linear",
			Description: "Linear sequence (1, 2, 3, 4, 5, 6, 7, 8, 9, 10)",
			Cards:       numericCards("0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10"),
		},
	}
}

// CustomSet builds an ad-hoc card set. Entries are kept in insertion order
// and duplicate values are preserved.
type CustomSet struct {
	cards []Card
}

// NewCustomSet starts a custom set from a copy of an existing one, the way
// switching to custom mode keeps the currently selected cards.
func NewCustomSet(from []Card) *CustomSet {
	return &CustomSet{cards: cloneCards(from)}
}

// Add appends a card. A blank label falls back to the value.
func (s *CustomSet) Add(value, label string) error {
	value = strings.TrimSpace(value)
	label = strings.TrimSpace(label)
	if value == "" {
		return &ValidationError{Field: "value", Message: "card value is required"}
	}
	if label == "" {
		label = value
	}

	s.cards = append(s.cards, Card{Value: value, Label: label})

	return nil
}

// AddSpecials appends the unsure, break and too-big cards in one go.
func (s *CustomSet) AddSpecials() {
	s.cards = append(s.cards, specialCards()...)
}

// Remove deletes the card at index i.
func (s *CustomSet) Remove(i int) error {
	if i < 0 || i >= len(s.cards) {
		return &ValidationError{Field: "index", Message: fmt.Sprintf("no card at position %d", i)}
	}

	s.cards = append(s.cards[:i:i], s.cards[i+1:]...)

	return nil
}

func (s *CustomSet) Len() int {
	return len(s.cards)
}

// Cards returns a copy of the set in order.
func (s *CustomSet) Cards() []Card {
	return cloneCards(s.cards)
}

func cloneCards(cards []Card) []Card {
	if cards == nil {
		return nil
	}
	out := make([]Card, len(cards))
	copy(out, cards)
	return out
}

func findCard(cards []Card, value string) (Card, bool) {
	for _, c := range cards {
		if c.Value == value {
			return c, true
		}
	}
	return Card{}, false
}
