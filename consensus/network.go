package consensus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

var ErrConnectionRefused = errors.New("connection refused")

// Transport opens listeners and outbound connections.
// Every protocol message travels on its own short-lived connection.
type Transport interface {
	Listen(addr string) (net.Listener, error)
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

type TCPTransport struct {
	DialTimeout time.Duration
}

func (t TCPTransport) Listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

func (t TCPTransport) Dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: t.DialTimeout}
	return dialer.DialContext(ctx, "tcp", addr)
}

// MemoryNetwork is an in-process Transport. Listeners are registered by
// address and connections are synchronous net.Pipe pairs.
type MemoryNetwork struct {
	mu        sync.Mutex
	listeners map[string]*memoryListener
}

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{listeners: make(map[string]*memoryListener)}
}

func (n *MemoryNetwork) Listen(addr string) (net.Listener, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if l, ok := n.listeners[addr]; ok && !l.isClosed() {
		return nil, fmt.Errorf("listen %s: address already in use", addr)
	}
	l := &memoryListener{
		network: n,
		addr:    memoryAddr(addr),
		conns:   make(chan net.Conn),
		closed:  make(chan struct{}),
	}
	n.listeners[addr] = l
	return l, nil
}

func (n *MemoryNetwork) Dial(ctx context.Context, addr string) (net.Conn, error) {
	n.mu.Lock()
	l, ok := n.listeners[addr]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("dial %s: %w", addr, ErrConnectionRefused)
	}
	client, server := net.Pipe()
	select {
	case l.conns <- server:
		return client, nil
	case <-l.closed:
	case <-ctx.Done():
		client.Close()
		server.Close()
		return nil, fmt.Errorf("dial %s: %w", addr, ctx.Err())
	}
	client.Close()
	server.Close()
	return nil, fmt.Errorf("dial %s: %w", addr, ErrConnectionRefused)
}

func (n *MemoryNetwork) unregister(l *memoryListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners[string(l.addr)] == l {
		delete(n.listeners, string(l.addr))
	}
}

type memoryListener struct {
	network *MemoryNetwork
	addr    memoryAddr
	conns   chan net.Conn
	closed  chan struct{}
	once    sync.Once
}

func (l *memoryListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *memoryListener) Close() error {
	l.once.Do(func() {
		close(l.closed)
		l.network.unregister(l)
	})
	return nil
}

func (l *memoryListener) Addr() net.Addr {
	return l.addr
}

func (l *memoryListener) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

type memoryAddr string

func (a memoryAddr) Network() string { return "memory" }
func (a memoryAddr) String() string  { return string(a) }
