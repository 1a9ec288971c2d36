package domain

import (
	"time"
)

// Level is the classified severity of an alert. Pass < Warn < Critical.
type Level int

const (
	// LevelPass means no threshold is reached.
	LevelPass Level = iota
	// LevelWarn means the warn threshold is reached.
	LevelWarn
	// LevelCritical means the critical threshold is reached.
	LevelCritical
)

// String returns the lower-case level name used in logs and payloads.
func (l Level) String() string {
	switch l {
	case LevelPass:
		return "pass"
	case LevelWarn:
		return "warn"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// AlertState is the classification of one sample.
// Message is empty for Pass.
type AlertState struct {
	Level   Level  `json:"level"`
	Message string `json:"message,omitempty"`
}

// Pass returns the initial state of every watcher.
func Pass() AlertState {
	return AlertState{Level: LevelPass}
}

// Changed reports whether moving to next is a transition.
// Only the level is compared; a different message at the same level is not a change.
func (s AlertState) Changed(next AlertState) bool {
	return s.Level != next.Level
}

// Classify maps a metric sample onto an alert state. Critical is checked first.
// Params: metric value and alert thresholds.
// Returns: Critical, Warn, or Pass with the matching threshold message.
func Classify(value MetricValue, thresholds Thresholds) AlertState {
	v := float64(value)
	switch {
	case v >= thresholds.Critical.Value:
		return AlertState{Level: LevelCritical, Message: thresholds.Critical.Message}
	case v >= thresholds.Warn.Value:
		return AlertState{Level: LevelWarn, Message: thresholds.Warn.Message}
	default:
		return Pass()
	}
}

// ActionKind selects the reporter shape.
type ActionKind int

const (
	// ActionResolve issues one resolve call.
	ActionResolve ActionKind = iota
	// ActionNotify issues notify calls at the repeat interval until cancelled.
	ActionNotify
)

// String returns the action name.
func (k ActionKind) String() string {
	if k == ActionNotify {
		return "notify"
	}
	return "resolve"
}

// NotificationAction is the side effect derived from one transition.
type NotificationAction struct {
	Kind           ActionKind
	Alert          AlertName
	Message        string
	RepeatInterval time.Duration
}

// ActionFor builds the action for an alert entering state.
// Params: alert definition and the new state.
// Returns: Resolve for Pass, Notify with message and repeat interval otherwise.
func ActionFor(def AlertDefinition, state AlertState) NotificationAction {
	if state.Level == LevelPass {
		return NotificationAction{Kind: ActionResolve, Alert: def.Name}
	}
	return NotificationAction{
		Kind:           ActionNotify,
		Alert:          def.Name,
		Message:        state.Message,
		RepeatInterval: def.RepeatInterval,
	}
}
