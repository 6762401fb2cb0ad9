package paxos

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	timing := Timing{
		SmallDelay:   500 * time.Millisecond,
		LargeDelay:   2000 * time.Millisecond,
		SlowDelay:    2000 * time.Millisecond,
		SlowDropRate: 0.5,
	}
	tests := []struct {
		profile ResponseProfile
		random  fixedRandom
		drop    bool
		wait    time.Duration
	}{
		{Immediate, 0.99, false, 0},
		{DelaySmall, 0.5, false, 250 * time.Millisecond},
		{DelaySmall, 0, false, 0},
		{DelayLarge, 0.25, false, 500 * time.Millisecond},
		{Slow, 0.1, true, 0},
		{Slow, 0.5, false, 2000 * time.Millisecond},
		{Slow, 0.9, false, 2000 * time.Millisecond},
		{Offline, 0.99, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.profile.String(), func(t *testing.T) {
			drop, wait := tt.profile.decide(tt.random, timing)
			assert.Equal(t, tt.drop, drop)
			assert.Equal(t, tt.wait, wait)
		})
	}
}

func TestDelaysStayWithinBounds(t *testing.T) {
	timing := DefaultTiming()
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		_, small := DelaySmall.decide(r, timing)
		require.GreaterOrEqual(t, small, time.Duration(0))
		require.Less(t, small, timing.SmallDelay)

		_, large := DelayLarge.decide(r, timing)
		require.GreaterOrEqual(t, large, time.Duration(0))
		require.Less(t, large, timing.LargeDelay)
	}
}

func TestSlowDropsRoughlyHalf(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	drops := 0
	for i := 0; i < 2000; i++ {
		if drop, _ := Slow.decide(r, DefaultTiming()); drop {
			drops++
		}
	}
	assert.InDelta(t, 1000, drops, 150)
}

func TestSeededDecisionsRepeat(t *testing.T) {
	first := newLockedRandom(rand.New(rand.NewSource(99)))
	second := newLockedRandom(rand.New(rand.NewSource(99)))
	for i := 0; i < 50; i++ {
		d1, w1 := Slow.decide(first, testTiming())
		d2, w2 := Slow.decide(second, testTiming())
		require.Equal(t, d1, d2)
		require.Equal(t, w1, w2)
	}
}

func TestParseResponseProfile(t *testing.T) {
	for _, p := range []ResponseProfile{Immediate, DelaySmall, DelayLarge, Slow, Offline} {
		parsed, err := ParseResponseProfile(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
	parsed, err := ParseResponseProfile(" offline ")
	require.NoError(t, err)
	assert.Equal(t, Offline, parsed)

	_, err = ParseResponseProfile("FLAKY")
	assert.True(t, errors.Is(err, ErrUnknownProfile))
	assert.Contains(t, ResponseProfile(42).String(), "unknown")
}
