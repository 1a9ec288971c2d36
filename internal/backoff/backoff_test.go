package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScheduleSaturates(t *testing.T) {
	t.Parallel()

	schedule := Default().Start()
	want := []time.Duration{
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		2 * time.Second,
		2 * time.Second,
	}
	for i, expected := range want {
		assert.Equal(t, expected, schedule.Advance(), "step %d", i)
	}
}

func TestScheduleNeverExceedsMaxAndNeverDecreases(t *testing.T) {
	t.Parallel()

	policies := []Policy{Default()}
	custom, err := NewPolicy([]time.Duration{time.Millisecond, time.Millisecond, 3 * time.Millisecond})
	require.NoError(t, err)
	policies = append(policies, custom)

	for _, policy := range policies {
		schedule := policy.Start()
		var previous time.Duration
		for i := 0; i < 100; i++ {
			delay := schedule.Advance()
			require.LessOrEqual(t, delay, policy.Max())
			require.GreaterOrEqual(t, delay, previous)
			previous = delay
		}
	}
}

func TestStartReturnsIndependentSchedules(t *testing.T) {
	t.Parallel()

	policy := Default()
	first := policy.Start()
	for i := 0; i < 4; i++ {
		first.Advance()
	}
	second := policy.Start()
	assert.Equal(t, 100*time.Millisecond, second.Advance())
	assert.Equal(t, 2*time.Second, first.Advance())
}

func TestNewPolicyValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPolicy(nil)
	require.Error(t, err)

	_, err = NewPolicy([]time.Duration{time.Second, 0})
	require.Error(t, err)

	_, err = NewPolicy([]time.Duration{time.Second, time.Millisecond})
	require.Error(t, err)

	steps := []time.Duration{time.Millisecond}
	policy, err := NewPolicy(steps)
	require.NoError(t, err)
	steps[0] = time.Hour
	assert.Equal(t, time.Millisecond, policy.Max(), "policy must copy its steps")
}

func TestZeroPolicyFallsBackToDefault(t *testing.T) {
	t.Parallel()

	var policy Policy
	assert.Equal(t, 100*time.Millisecond, policy.Start().Advance())
	assert.Equal(t, 2*time.Second, policy.Max())
}
