package paxos

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

var ErrUnknownProfile = errors.New("unknown response profile")

// ResponseProfile decides how a member treats each inbound message before
// the protocol sees it.
type ResponseProfile uint8

const (
	Immediate ResponseProfile = iota
	DelaySmall
	DelayLarge
	Slow
	Offline
)

func (p ResponseProfile) String() string {
	switch p {
	case Immediate:
		return "IMMEDIATE"
	case DelaySmall:
		return "DELAY_SMALL"
	case DelayLarge:
		return "DELAY_LARGE"
	case Slow:
		return "SLOW"
	case Offline:
		return "OFFLINE"
	default:
		return fmt.Sprintf("unknown response profile: %d", p)
	}
}

func ParseResponseProfile(s string) (ResponseProfile, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "IMMEDIATE":
		return Immediate, nil
	case "DELAY_SMALL":
		return DelaySmall, nil
	case "DELAY_LARGE":
		return DelayLarge, nil
	case "SLOW":
		return Slow, nil
	case "OFFLINE":
		return Offline, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownProfile, s)
	}
}

// Timing holds the pauses and drop rate the profiles apply.
type Timing struct {
	SmallDelay   time.Duration // DELAY_SMALL waits uniformly in [0, SmallDelay)
	LargeDelay   time.Duration // DELAY_LARGE waits uniformly in [0, LargeDelay)
	SlowDelay    time.Duration // SLOW waits exactly this long when it keeps a message
	SlowDropRate float64
}

func DefaultTiming() Timing {
	return Timing{
		SmallDelay:   500 * time.Millisecond,
		LargeDelay:   2000 * time.Millisecond,
		SlowDelay:    2000 * time.Millisecond,
		SlowDropRate: 0.5,
	}
}

// Random is the source of randomness behind delays and drops.
// *rand.Rand satisfies it.
type Random interface {
	Float64() float64
	Int63n(n int64) int64
}

// lockedRandom serialises a Random shared by concurrent inbound handlers.
type lockedRandom struct {
	mu  sync.Mutex
	src Random
}

func newLockedRandom(src Random) *lockedRandom {
	if src == nil {
		src = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &lockedRandom{src: src}
}

func (r *lockedRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Float64()
}

func (r *lockedRandom) Int63n(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Int63n(n)
}

func uniform(r Random, max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(r.Int63n(int64(max)))
}

// decide returns whether to drop the message and, if kept, how long to hold it.
func (p ResponseProfile) decide(r Random, timing Timing) (drop bool, wait time.Duration) {
	switch p {
	case Immediate:
		return false, 0
	case DelaySmall:
		return false, uniform(r, timing.SmallDelay)
	case DelayLarge:
		return false, uniform(r, timing.LargeDelay)
	case Slow:
		if r.Float64() < timing.SlowDropRate {
			return true, 0
		}
		return false, timing.SlowDelay
	case Offline:
		return true, 0
	default:
		return false, uniform(r, timing.SmallDelay)
	}
}
