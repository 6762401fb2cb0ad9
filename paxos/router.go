package paxos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"council/consensus"

	"go.uber.org/zap"
)

var ErrUnreachablePeer = errors.New("unreachable peer")

// Router delivers messages from one member to its peers, one connection per message.
type Router struct {
	self      int
	directory *consensus.Directory
	transport consensus.Transport
	timeout   time.Duration
	logger    *zap.Logger
}

func NewRouter(self int, directory *consensus.Directory, transport consensus.Transport, timeout time.Duration, logger *zap.Logger) *Router {
	return &Router{
		self:      self,
		directory: directory,
		transport: transport,
		timeout:   timeout,
		logger:    logger,
	}
}

// Unicast sends msg to member `to`. Failures are logged and returned wrapped
// in ErrUnreachablePeer; they are never retried.
func (r *Router) Unicast(ctx context.Context, to int, msg Message) error {
	err := r.send(ctx, to, msg)
	if err != nil {
		r.logger.Debug("unreachable peer", zap.Int("peer", to), zap.Stringer("message", msg), zap.Error(err))
		return fmt.Errorf("%w %d: %v", ErrUnreachablePeer, to, err)
	}
	return nil
}

func (r *Router) send(ctx context.Context, to int, msg Message) error {
	addr, ok := r.directory.Address(to)
	if !ok {
		return consensus.ErrUnknownMember
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	conn, err := r.transport.Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	return WriteMessage(conn, msg)
}

// Broadcast unicasts msg to every other member in directory order and
// returns how many sends succeeded. There is no rollback on partial failure.
func (r *Router) Broadcast(ctx context.Context, msg Message) int {
	delivered := 0
	for _, peer := range r.directory.Peers(r.self) {
		if r.Unicast(ctx, peer, msg) == nil {
			delivered++
		}
	}
	return delivered
}
