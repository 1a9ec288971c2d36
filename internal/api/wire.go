package api

import (
	"math"
	"time"

	"alertengine/internal/domain"
)

// alertPayload is one element of GET /alerts.
// Both the short (intervalSecs) and long (pollIntervalSeconds) key spellings are accepted.
type alertPayload struct {
	Name                  string           `json:"name"`
	Query                 string           `json:"query"`
	IntervalSecs          *float64         `json:"intervalSecs"`
	PollIntervalSeconds   *float64         `json:"pollIntervalSeconds"`
	RepeatIntervalSecs    *float64         `json:"repeatIntervalSecs"`
	RepeatIntervalSeconds *float64         `json:"repeatIntervalSeconds"`
	Warn                  domain.Threshold `json:"warn"`
	Critical              domain.Threshold `json:"critical"`
}

func (p alertPayload) definition() domain.AlertDefinition {
	return domain.AlertDefinition{
		Name:           domain.AlertName(p.Name),
		Query:          domain.QueryName(p.Query),
		PollInterval:   seconds(p.IntervalSecs, p.PollIntervalSeconds),
		RepeatInterval: seconds(p.RepeatIntervalSecs, p.RepeatIntervalSeconds),
		Thresholds: domain.Thresholds{
			Warn:     p.Warn,
			Critical: p.Critical,
		},
	}
}

// seconds converts the first present value to a duration; absent values yield 0,
// which the definition's own validation rejects. Values past the Duration range are clamped.
func seconds(candidates ...*float64) time.Duration {
	for _, candidate := range candidates {
		if candidate == nil {
			continue
		}
		nanos := *candidate * float64(time.Second)
		switch {
		case nanos >= math.MaxInt64:
			return time.Duration(math.MaxInt64)
		case nanos <= math.MinInt64:
			return time.Duration(math.MinInt64)
		}
		return time.Duration(nanos)
	}
	return 0
}

type queryPayload struct {
	Value *float64 `json:"value"`
}

type notifyPayload struct {
	AlertName string `json:"alertName"`
	Message   string `json:"message"`
}

type resolvePayload struct {
	AlertName string `json:"alertName"`
}
