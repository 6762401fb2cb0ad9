package paxos

import "go.uber.org/zap"

type acceptorState struct {
	promisedProposalNumber int64
	acceptedProposalNumber int64
	acceptedValue          string
}

func newAcceptorState() acceptorState {
	return acceptorState{
		promisedProposalNumber: NoProposal,
		acceptedProposalNumber: NoProposal,
	}
}

// onPrepare must be called with m.mu held.
func (m *Member) onPrepare(msg Message) []envelope {
	a := &m.acceptor
	// Acceptors should not promise when the proposal number is *not greater* than the promised one.
	if msg.ProposalNumber <= a.promisedProposalNumber {
		m.logger.Debug("ignored prepare", zap.Int64("n", msg.ProposalNumber), zap.Int64("promised", a.promisedProposalNumber))
		return nil
	}
	a.promisedProposalNumber = msg.ProposalNumber
	m.numbers.Observe(msg.ProposalNumber)
	promise := NewPromise(m.id, msg.ProposalNumber, a.acceptedProposalNumber, a.acceptedValue)
	return []envelope{unicast(msg.SenderID, promise)}
}

// onAcceptRequest must be called with m.mu held.
func (m *Member) onAcceptRequest(msg Message) []envelope {
	a := &m.acceptor
	// Acceptors should not accept when the proposal number is *less* than the promised one.
	if msg.ProposalNumber < a.promisedProposalNumber {
		m.logger.Debug("ignored accept request", zap.Int64("n", msg.ProposalNumber), zap.Int64("promised", a.promisedProposalNumber))
		return nil
	}
	a.promisedProposalNumber = msg.ProposalNumber
	a.acceptedProposalNumber = msg.ProposalNumber
	a.acceptedValue = msg.Value
	m.numbers.Observe(msg.ProposalNumber)
	accepted := NewAccepted(m.id, a.acceptedProposalNumber, a.acceptedValue)
	return []envelope{unicast(msg.SenderID, accepted)}
}
