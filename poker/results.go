/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package poker

import (
	"math"
	"slices"
	"strconv"
	"strings"
)

type Participant struct {
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	HasVoted bool   `json:"hasVoted"`
}

type Progress struct {
	Voted        int           `json:"voted"`
	Total        int           `json:"total"`
	Participants []Participant `json:"participants"`
}

// Tally is the number of votes one value received.
type Tally struct {
	Value     string  `json:"value"`
	Label     string  `json:"label"`
	IsSpecial bool    `json:"isSpecial,omitempty"`
	Count     int     `json:"count"`
	Percent   float64 `json:"percent"`
}

type UserVote struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Value     string `json:"value"`
	Label     string `json:"label"`
	IsSpecial bool   `json:"isSpecial,omitempty"`
}

// Results is what the room shows below the cards. Everything except
// Progress stays empty until the round is revealed.
type Results struct {
	Revealed    bool       `json:"revealed"`
	Progress    Progress   `json:"progress"`
	TotalVotes  int        `json:"totalVotes,omitempty"`
	Tallies     []Tally    `json:"tallies,omitempty"`
	Average     *float64   `json:"average,omitempty"`
	MostPopular string     `json:"mostPopular,omitempty"`
	Votes       []UserVote `json:"votes,omitempty"`
}

// AverageText formats the average to one decimal, or "N/A" when no vote
// was numeric.
func (r Results) AverageText() string {
	if r.Average == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*r.Average, 'f', 1, 64)
}

// Aggregate summarises a round. Tallies are ordered by count, highest
// first; equal counts keep the order in which the value was first cast,
// walking users in session order.
func Aggregate(users []User, cards []Card, revealed bool) Results {
	res := Results{
		Revealed: revealed,
		Progress: Progress{
			Total:        len(users),
			Participants: make([]Participant, 0, len(users)),
		},
	}

	for _, u := range users {
		if u.HasVoted {
			res.Progress.Voted++
		}
		res.Progress.Participants = append(res.Progress.Participants, Participant{
			UserID:   u.ID,
			Name:     u.Name,
			HasVoted: u.HasVoted,
		})
	}

	if !revealed {
		return res
	}

	var (
		counts = make(map[string]int)
		order  []string
		sum    float64
		nums   int
	)

	for _, u := range users {
		if !u.HasVoted || u.Vote == "" {
			continue
		}

		card := cardInfo(cards, u.Vote)
		res.Votes = append(res.Votes, UserVote{
			UserID:    u.ID,
			Name:      u.Name,
			Value:     u.Vote,
			Label:     card.Label,
			IsSpecial: card.IsSpecial,
		})

		if counts[u.Vote] == 0 {
			order = append(order, u.Vote)
		}
		counts[u.Vote]++

		if n, ok := numericValue(card); ok {
			sum += n
			nums++
		}
	}

	res.TotalVotes = len(res.Votes)

	for _, v := range order {
		card := cardInfo(cards, v)
		res.Tallies = append(res.Tallies, Tally{
			Value:     v,
			Label:     card.Label,
			IsSpecial: card.IsSpecial,
			Count:     counts[v],
			Percent:   math.Round(float64(counts[v]) / float64(res.TotalVotes) * 100),
		})
	}
	slices.SortStableFunc(res.Tallies, func(a, b Tally) int {
		return b.Count - a.Count
	})

	if len(res.Tallies) > 0 {
		res.MostPopular = res.Tallies[0].Value
	}
	if nums > 0 {
		avg := sum / float64(nums)
		res.Average = &avg
	}

	return res
}

// cardInfo falls back to a plain card for values outside the set, which
// can happen for sessions persisted before their card set changed.
func cardInfo(cards []Card, value string) Card {
	if c, ok := findCard(cards, value); ok {
		return c
	}
	return Card{Value: value, Label: value}
}

func numericValue(c Card) (float64, bool) {
	if c.IsSpecial {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
