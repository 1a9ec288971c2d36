package templatefmt

import (
	"testing"
	"time"

	"alertengine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTransition(t *testing.T) {
	t.Parallel()

	tmpl, err := ParseTransitionTemplate("test", `{{ .Icon }} {{ .Alert }} {{ .From }}->{{ .To }} {{ .Message }} {{ .Value }}`)
	require.NoError(t, err)

	got, err := RenderTransition(tmpl, domain.Transition{
		Alert: "disk<root>",
		From:  domain.Pass(),
		To:    domain.AlertState{Level: domain.LevelCritical, Message: "usage > 90%"},
		Value: 95.5,
		At:    time.Unix(0, 0).UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, "🔴 disk&lt;root&gt; pass->critical usage &gt; 90% 95.5", got)
}

func TestRenderResolvedDropsMessage(t *testing.T) {
	t.Parallel()

	tmpl, err := ParseTransitionTemplate("test", `{{ .Icon }} {{ .To }}[{{ .Message }}]`)
	require.NoError(t, err)

	got, err := RenderTransition(tmpl, domain.Transition{
		From: domain.AlertState{Level: domain.LevelWarn, Message: "W"},
		To:   domain.Pass(),
	})
	require.NoError(t, err)
	assert.Equal(t, "🟢 pass[]", got)
}

func TestParseRejectsUnknownFunction(t *testing.T) {
	t.Parallel()

	_, err := ParseTransitionTemplate("bad", `{{ nope .Alert }}`)
	assert.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	cases := map[string]any{
		"1.5s": 1500 * time.Millisecond,
		"2.0m": 2 * time.Minute,
		"1.5h": 90 * time.Minute,
		"0.0s": "not a duration",
	}
	for want, input := range cases {
		assert.Equal(t, want, FormatDuration(input), "input %v", input)
	}
}
