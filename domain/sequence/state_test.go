package sequence

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState(t *testing.T, opts Options) *State {
	t.Helper()
	st, err := NewState(1, 1, "seq", opts)
	require.NoError(t, err)
	return st
}

func TestAdvance_FirstCallReturnsStart(t *testing.T) {
	st := newState(t, Options{Increment: 1, MinValue: 1, MaxValue: math.MaxInt64, Start: 7})

	v, err := st.Advance()
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
	assert.Equal(t, int64(8), st.Current())
}

func TestAdvance_ReturnThenStep(t *testing.T) {
	st := newState(t, Options{Increment: 3, MinValue: 0, MaxValue: 1000, Start: 5})

	for i := int64(0); i < 20; i++ {
		v, err := st.Advance()
		require.NoError(t, err)
		require.Equal(t, 5+i*3, v)
	}
}

func TestAdvance_AscendingCycleWrapsToMin(t *testing.T) {
	st := newState(t, Options{Increment: 2, MinValue: 10, MaxValue: 50, Start: 10, Cycle: true})
	require.NoError(t, st.SetCurrent(50))

	v, err := st.Advance()
	require.NoError(t, err)
	assert.Equal(t, int64(50), v)

	v, err = st.Advance()
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)
}

func TestAdvance_AscendingWithoutCycleLeavesStateUnchanged(t *testing.T) {
	st := newState(t, Options{Increment: 2, MinValue: 10, MaxValue: 50, Start: 10})
	require.NoError(t, st.SetCurrent(50))

	_, err := st.Advance()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLimitExceeded))
	assert.Contains(t, err.Error(), `reached maximum value of sequence "seq" (50)`)
	assert.Equal(t, int64(50), st.Current())

	// Still exhausted on retry.
	_, err = st.Advance()
	assert.True(t, errors.Is(err, ErrLimitExceeded))
}

func TestAdvance_DescendingCycleWrapsToMax(t *testing.T) {
	st := newState(t, Options{Increment: -1, MinValue: 10, MaxValue: 50, Start: 10, Cycle: true})

	v, err := st.Advance()
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	v, err = st.Advance()
	require.NoError(t, err)
	assert.Equal(t, int64(50), v)

	v, err = st.Advance()
	require.NoError(t, err)
	assert.Equal(t, int64(49), v)
}

func TestAdvance_DescendingWithoutCycle(t *testing.T) {
	st := newState(t, Options{Increment: -5, MinValue: -12, MaxValue: 0, Start: 0})

	for _, want := range []int64{0, -5} {
		v, err := st.Advance()
		require.NoError(t, err)
		require.Equal(t, want, v)
	}
	// -10 - 5 falls below -12, so -10 itself is never vended.
	_, err := st.Advance()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLimitExceeded))
	assert.Contains(t, err.Error(), `reached minimum value of sequence "seq" (-12)`)
	assert.Equal(t, int64(-10), st.Current())
}

func TestAdvance_NegativeMaxBoundary(t *testing.T) {
	st := newState(t, Options{Increment: 4, MinValue: -20, MaxValue: -2, Start: -10})

	for _, want := range []int64{-10, -6} {
		v, err := st.Advance()
		require.NoError(t, err)
		require.Equal(t, want, v)
	}
	_, err := st.Advance()
	assert.True(t, errors.Is(err, ErrLimitExceeded))
	assert.Equal(t, int64(-2), st.Current())
}

func TestAdvance_NoOverflowNearInt64Limits(t *testing.T) {
	st := newState(t, Options{Increment: 10, MinValue: 0, MaxValue: math.MaxInt64, Start: math.MaxInt64 - 15})

	v, err := st.Advance()
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64-15), v)
	assert.Equal(t, int64(math.MaxInt64-5), st.Current())

	_, err = st.Advance()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLimitExceeded))
	assert.Equal(t, int64(math.MaxInt64-5), st.Current())
}

func TestAdvance_DescendingNearInt64Min(t *testing.T) {
	st := newState(t, Options{Increment: -10, MinValue: math.MinInt64, MaxValue: 0, Start: math.MinInt64 + 15, Cycle: true})

	v, err := st.Advance()
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64+15), v)

	v, err = st.Advance()
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64+5), v)
	assert.Equal(t, int64(0), st.Current())
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts Options
		msg  string
	}{
		{"min above max", Options{Increment: 1, MinValue: 10, MaxValue: 5, Start: 10}, "MINVALUE (10) must be less than MAXVALUE (5)"},
		{"zero increment", Options{Increment: 0, MinValue: 1, MaxValue: 5, Start: 1}, "INCREMENT must not be zero"},
		{"ascending start below min", Options{Increment: 1, MinValue: 3, MaxValue: 5, Start: 1}, "START value (1) cannot be less than MINVALUE (3)"},
		{"descending start above max", Options{Increment: -1, MinValue: 3, MaxValue: 5, Start: 9}, "START value (9) cannot be greater than MAXVALUE (5)"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewState(1, 1, "seq", tc.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDefinition))
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestSetCurrent_OutOfBounds(t *testing.T) {
	st := newState(t, Options{Increment: 1, MinValue: 1, MaxValue: 10, Start: 1})

	err := st.SetCurrent(11)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLimitExceeded))
	assert.Equal(t, int64(1), st.Current())
}
