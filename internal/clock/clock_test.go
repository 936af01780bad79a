package clock

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = New([]Time{100, 100})
	assert.ErrorIs(t, err, ErrNotIncreasing)

	_, err = New([]Time{100, 99})
	assert.ErrorIs(t, err, ErrNotIncreasing)

	c, err := New([]Time{100})
	require.NoError(t, err)
	assert.Equal(t, Time(100), c.Now())
	assert.False(t, c.HasMore())
}

func TestNew_CopiesInput(t *testing.T) {
	times := []Time{1, 2, 3}
	c, err := New(times)
	require.NoError(t, err)

	times[0] = 50
	assert.Equal(t, Time(1), c.Now())
}

func TestFromRange(t *testing.T) {
	c, err := FromRange(100, 130, 10)
	require.NoError(t, err)
	assert.Equal(t, []Time{100, 110, 120, 130}, slices.Collect(c.Peek()))

	_, err = FromRange(100, 130, 0)
	assert.Error(t, err)

	_, err = FromRange(130, 100, 10)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestAdvance(t *testing.T) {
	c, err := New([]Time{100, 101, 102})
	require.NoError(t, err)

	assert.Equal(t, Time(100), c.Now())
	assert.True(t, c.HasMore())

	c.Advance()
	assert.Equal(t, Time(101), c.Now())
	assert.Equal(t, 1, c.Position())

	c.Advance()
	assert.Equal(t, Time(102), c.Now())
	assert.False(t, c.HasMore())

	assert.Panics(t, func() { c.Advance() })
	assert.Equal(t, Time(102), c.Now())
}

func TestPeek_DoesNotMoveAndRestarts(t *testing.T) {
	c, err := New([]Time{1, 2, 3})
	require.NoError(t, err)
	c.Advance()

	first := slices.Collect(c.Peek())
	second := slices.Collect(c.Peek())
	assert.Equal(t, []Time{1, 2, 3}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, Time(2), c.Now())

	var seen []Time
	for ts := range c.Peek() {
		seen = append(seen, ts)
		if ts == 2 {
			break
		}
	}
	assert.Equal(t, []Time{1, 2}, seen)
}
