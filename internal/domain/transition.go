package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transition records one state change of an alert.
// Params: identity, previous and next state, triggering sample, and time.
// Returns: event payload for announcers and logs.
type Transition struct {
	ID    string      `json:"id"`
	Alert AlertName   `json:"alert"`
	Query QueryName   `json:"query"`
	From  AlertState  `json:"from"`
	To    AlertState  `json:"to"`
	Value MetricValue `json:"value"`
	At    time.Time   `json:"at"`
}

// NewTransition builds a transition with a fresh random ID.
// Params: alert definition, states, sample value, and timestamp.
// Returns: transition event.
func NewTransition(def AlertDefinition, from, to AlertState, value MetricValue, at time.Time) Transition {
	return Transition{
		ID:    uuid.NewString(),
		Alert: def.Name,
		Query: def.Query,
		From:  from,
		To:    to,
		Value: value,
		At:    at,
	}
}

// Resolved reports whether the alert returned to Pass.
func (t Transition) Resolved() bool {
	return t.To.Level == LevelPass
}

// Escalated reports whether the new level is higher than the previous one.
func (t Transition) Escalated() bool {
	return t.To.Level > t.From.Level
}
