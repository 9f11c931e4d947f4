package httpdate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	const ts int64 = 1700000000
	s := Format(ts)
	got, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, ts, got)
}

func TestFormatNegativeIsNow(t *testing.T) {
	s := Format(-1)
	_, err := Parse(s)
	require.NoError(t, err)
}
