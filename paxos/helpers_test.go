package paxos

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"council/consensus"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// fixedRandom always lands at the same fraction of any range.
type fixedRandom float64

func (f fixedRandom) Float64() float64 { return float64(f) }

func (f fixedRandom) Int63n(n int64) int64 {
	v := int64(float64(f) * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

func testTiming() Timing {
	return Timing{
		SmallDelay:   20 * time.Millisecond,
		LargeDelay:   60 * time.Millisecond,
		SlowDelay:    60 * time.Millisecond,
		SlowDropRate: 0.5,
	}
}

func memoryDirectory(t *testing.T, n int) *consensus.Directory {
	t.Helper()
	addresses := make(map[int]string, n)
	for id := 1; id <= n; id++ {
		addresses[id] = fmt.Sprintf("member-%d", id)
	}
	d, err := consensus.NewDirectory(addresses)
	require.NoError(t, err)
	return d
}

func testConfig(t *testing.T) Config {
	return Config{
		Logger:         zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)),
		Transport:      consensus.NewMemoryNetwork(),
		DefaultProfile: DelaySmall,
		Timing:         testTiming(),
		Seed:           42,
	}
}

// newTestCouncil builds and starts an n-member council on an in-memory network.
func newTestCouncil(t *testing.T, n int, configure func(*Config)) *Council {
	t.Helper()
	cfg := testConfig(t)
	if configure != nil {
		configure(&cfg)
	}
	c, err := NewCouncil(memoryDirectory(t, n), cfg)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	t.Cleanup(c.Stop)
	return c
}

// newIdleMember builds a member that is never started, for driving handlers directly.
func newIdleMember(t *testing.T, id int, n int) *Member {
	t.Helper()
	m, err := NewMember(id, memoryDirectory(t, n), testConfig(t))
	require.NoError(t, err)
	return m
}

func handleLocked(t *testing.T, m *Member, msg Message) []envelope {
	t.Helper()
	require.NoError(t, msg.Validate())
	m.mu.Lock()
	defer m.mu.Unlock()
	out, err := m.handle(msg)
	require.NoError(t, err)
	return out
}

func member(t *testing.T, c *Council, id int) *Member {
	t.Helper()
	m, err := c.Member(id)
	require.NoError(t, err)
	return m
}

func awaitContext(t *testing.T, d time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func freeTCPAddresses(t *testing.T, n int) map[int]string {
	t.Helper()
	addresses := make(map[int]string, n)
	listeners := make([]net.Listener, 0, n)
	for id := 1; id <= n; id++ {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners = append(listeners, l)
		addresses[id] = l.Addr().String()
	}
	for _, l := range listeners {
		l.Close()
	}
	return addresses
}
