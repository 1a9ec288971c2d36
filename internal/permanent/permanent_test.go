package permanent

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkAndIs(t *testing.T) {
	t.Parallel()

	require.NoError(t, Mark("decode", nil), "marking nil must stay nil")

	marked := Mark("decode alerts", io.ErrUnexpectedEOF)
	require.True(t, Is(marked))
	assert.True(t, errors.Is(marked, io.ErrUnexpectedEOF), "cause must remain reachable")
	assert.EqualError(t, marked, "decode alerts: unexpected EOF")

	wrapped := fmt.Errorf("query cpu: %w", marked)
	assert.True(t, Is(wrapped), "wrapped marker not detected")
	assert.False(t, Is(io.ErrUnexpectedEOF))
	assert.False(t, Is(nil))
}
