package consensus

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryNetworkDeliversConnection(t *testing.T) {
	network := NewMemoryNetwork()
	l, err := network.Listen("member-1")
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, "member-1", l.Addr().String())

	received := make(chan string, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		b, _ := io.ReadAll(conn)
		received <- string(b)
	}()

	conn, err := network.Dial(context.Background(), "member-1")
	require.NoError(t, err)
	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	select {
	case got := <-received:
		assert.Equal(t, "hello", got)
	case <-time.After(time.Second):
		t.Fatal("message not received")
	}
}

func TestMemoryNetworkRefusesUnknownAndClosed(t *testing.T) {
	network := NewMemoryNetwork()
	_, err := network.Dial(context.Background(), "nobody")
	assert.True(t, errors.Is(err, ErrConnectionRefused))

	l, err := network.Listen("member-2")
	require.NoError(t, err)
	require.NoError(t, l.Close())
	_, err = network.Dial(context.Background(), "member-2")
	assert.True(t, errors.Is(err, ErrConnectionRefused))

	_, err = l.Accept()
	assert.True(t, errors.Is(err, net.ErrClosed))
}

func TestMemoryNetworkAddressReuse(t *testing.T) {
	network := NewMemoryNetwork()
	l, err := network.Listen("member-3")
	require.NoError(t, err)
	_, err = network.Listen("member-3")
	assert.Error(t, err)

	require.NoError(t, l.Close())
	l2, err := network.Listen("member-3")
	require.NoError(t, err)
	// Closing the old listener again must not unregister the new one.
	require.NoError(t, l.Close())
	require.NoError(t, l2.Close())
}

func TestMemoryNetworkDialHonoursContext(t *testing.T) {
	network := NewMemoryNetwork()
	l, err := network.Listen("member-4")
	require.NoError(t, err)
	defer l.Close()

	// Nobody accepts, so the dial can only end through ctx.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = network.Dial(ctx, "member-4")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestTCPTransport(t *testing.T) {
	transport := TCPTransport{DialTimeout: time.Second}
	l, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err == nil {
			conn.Write([]byte("ok"))
			conn.Close()
		}
	}()

	conn, err := transport.Dial(context.Background(), l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	b, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(b))
}
