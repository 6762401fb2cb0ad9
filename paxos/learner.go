package paxos

import (
	"errors"

	"go.uber.org/zap"
)

var ErrConflictingLearn = errors.New("conflicting learned value")

// onAccepted counts ACCEPTED replies for the member's own round.
// Must be called with m.mu held.
func (m *Member) onAccepted(msg Message) []envelope {
	p := &m.proposer
	if msg.ProposalNumber != p.proposalNumber {
		m.logger.Debug("ignored stale accepted", zap.Int64("n", msg.ProposalNumber), zap.Int64("current", p.proposalNumber))
		return nil
	}
	p.acceptsReceived[msg.SenderID] = struct{}{}
	if p.learnSent || len(p.acceptsReceived) < m.majority {
		return nil
	}

	p.learnSent = true
	m.learn(msg.Value)
	return []envelope{broadcast(NewLearn(m.id, p.proposalNumber, msg.Value))}
}

// onLearn must be called with m.mu held.
func (m *Member) onLearn(msg Message) error {
	if !m.learned {
		m.learn(msg.Value)
		return nil
	}
	if msg.Value != m.learnedValue {
		return ErrConflictingLearn
	}
	return nil
}

// learn records the chosen value and takes the member out of the protocol.
// Must be called with m.mu held.
func (m *Member) learn(value string) {
	m.learned = true
	m.learnedValue = value
	m.active = false
	close(m.done)
	m.logger.Info("learned value", zap.String("value", value))
}
