package backoff

import (
	"errors"
	"fmt"
	"time"
)

// DefaultSteps is the delay sequence used when no steps are configured.
var DefaultSteps = []time.Duration{
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	2 * time.Second,
}

// Policy describes a retry delay sequence. It holds no cursor and is safe to share.
type Policy struct {
	steps []time.Duration
}

// NewPolicy validates steps and builds a policy.
// Params: ordered delays; must be non-empty, positive and non-decreasing.
// Returns: policy or validation error.
func NewPolicy(steps []time.Duration) (Policy, error) {
	if len(steps) == 0 {
		return Policy{}, errors.New("backoff steps must not be empty")
	}
	for i, step := range steps {
		if step <= 0 {
			return Policy{}, fmt.Errorf("backoff step %d must be >0, got %s", i, step)
		}
		if i > 0 && step < steps[i-1] {
			return Policy{}, fmt.Errorf("backoff step %d (%s) is shorter than step %d (%s)", i, step, i-1, steps[i-1])
		}
	}
	return Policy{steps: append([]time.Duration(nil), steps...)}, nil
}

// Default returns the policy over DefaultSteps.
func Default() Policy {
	return Policy{steps: append([]time.Duration(nil), DefaultSteps...)}
}

// Max returns the largest delay the policy produces.
func (p Policy) Max() time.Duration {
	if len(p.steps) == 0 {
		return DefaultSteps[len(DefaultSteps)-1]
	}
	return p.steps[len(p.steps)-1]
}

// Start creates a fresh schedule for one logical call.
// Params: none.
// Returns: schedule positioned at the first step.
func (p Policy) Start() *Schedule {
	steps := p.steps
	if len(steps) == 0 {
		steps = DefaultSteps
	}
	return &Schedule{steps: steps}
}

// Schedule is the cursor over a policy for one retry sequence.
// It is not safe for concurrent use and has no reset.
type Schedule struct {
	steps  []time.Duration
	cursor int
}

// Advance returns the delay at the cursor and moves forward, clamped at the last step.
// Params: none.
// Returns: next wait duration.
func (s *Schedule) Advance() time.Duration {
	delay := s.steps[s.cursor]
	if s.cursor < len(s.steps)-1 {
		s.cursor++
	}
	return delay
}
