package consensus

import (
	"math/bits"
	"sync/atomic"
)

// NumberGenerator hands out proposal numbers for one member.
type NumberGenerator interface {
	Next() int64
	Observe(n int64)
}

// ProposalNumbers generates globally unique, per-member increasing proposal numbers.
// A number is a local round counter shifted left past an id band wide enough
// for the largest member id, with the member id in the low-order bits.
type ProposalNumbers struct {
	id    int64
	shift uint
	round atomic.Int64
}

var _ NumberGenerator = (*ProposalNumbers)(nil)

func NewProposalNumbers(id int, maxID int) *ProposalNumbers {
	if id > maxID {
		maxID = id
	}
	return &ProposalNumbers{
		id:    int64(id),
		shift: uint(bits.Len64(uint64(maxID))),
	}
}

// Next bumps the local round and returns the corresponding proposal number.
func (g *ProposalNumbers) Next() int64 {
	return g.round.Add(1)<<g.shift | g.id
}

// Observe raises the local round to the round of n, so the next number
// allocated is greater than n.
func (g *ProposalNumbers) Observe(n int64) {
	if n < 0 {
		return
	}
	seen := n >> g.shift
	for {
		current := g.round.Load()
		if seen <= current || g.round.CompareAndSwap(current, seen) {
			return
		}
	}
}

// Round extracts the local round counter from a proposal number.
func (g *ProposalNumbers) Round(n int64) int64 {
	return n >> g.shift
}

// Proposer extracts the member id from a proposal number.
func (g *ProposalNumbers) Proposer(n int64) int {
	return int(n & (1<<g.shift - 1))
}
