package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDefinition marks alert definitions the engine cannot watch.
var ErrInvalidDefinition = errors.New("invalid alert definition")

// AlertName is the unique identity of one alert.
type AlertName string

// QueryName references a query resolved by the remote query service.
type QueryName string

// MetricValue is one numeric sample returned by a query evaluation.
type MetricValue float64

// Threshold pairs a trigger value with the message reported while it holds.
type Threshold struct {
	Message string  `json:"message"`
	Value   float64 `json:"value"`
}

// Thresholds holds both alerting levels of one alert.
type Thresholds struct {
	Warn     Threshold `json:"warn"`
	Critical Threshold `json:"critical"`
}

// AlertDefinition describes one watched alert.
// Params: identity, query reference, timing, and thresholds.
// Returns: immutable definition owned by one watcher.
type AlertDefinition struct {
	Name           AlertName
	Query          QueryName
	PollInterval   time.Duration
	RepeatInterval time.Duration
	Thresholds     Thresholds
}

// Validate checks that the definition can drive a polling loop.
// Params: none.
// Returns: error wrapping ErrInvalidDefinition.
func (d AlertDefinition) Validate() error {
	switch {
	case strings.TrimSpace(string(d.Name)) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	case strings.TrimSpace(string(d.Query)) == "":
		return fmt.Errorf("%w: alert %q: query is required", ErrInvalidDefinition, d.Name)
	case d.PollInterval <= 0:
		return fmt.Errorf("%w: alert %q: poll interval must be >0, got %s", ErrInvalidDefinition, d.Name, d.PollInterval)
	case d.RepeatInterval <= 0:
		return fmt.Errorf("%w: alert %q: repeat interval must be >0, got %s", ErrInvalidDefinition, d.Name, d.RepeatInterval)
	}
	return nil
}
