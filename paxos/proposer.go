package paxos

import "go.uber.org/zap"

type priorProposal struct {
	number int64
	value  string
}

// proposerState is the bookkeeping of the member's latest round only.
// Starting a new round discards it.
type proposerState struct {
	proposalNumber    int64
	proposalValue     string
	promisesReceived  map[int]struct{}
	priorAccepted     map[int]priorProposal
	acceptRequestSent bool
	acceptsReceived   map[int]struct{}
	learnSent         bool
}

func newProposerState() proposerState {
	return proposerState{proposalNumber: NoProposal}
}

// startRound resets the proposer and allocates a new proposal number.
// Must be called with m.mu held.
func (m *Member) startRound(value string) int64 {
	m.proposer = proposerState{
		proposalNumber:   m.numbers.Next(),
		proposalValue:    value,
		promisesReceived: make(map[int]struct{}),
		priorAccepted:    make(map[int]priorProposal),
		acceptsReceived:  make(map[int]struct{}),
	}
	return m.proposer.proposalNumber
}

// onPromise must be called with m.mu held.
func (m *Member) onPromise(msg Message) []envelope {
	p := &m.proposer
	if msg.ProposalNumber != p.proposalNumber {
		m.logger.Debug("ignored stale promise", zap.Int64("n", msg.ProposalNumber), zap.Int64("current", p.proposalNumber))
		return nil
	}
	p.promisesReceived[msg.SenderID] = struct{}{}
	if msg.HasPrior() {
		p.priorAccepted[msg.SenderID] = priorProposal{
			number: msg.PriorAcceptedProposalNumber,
			value:  msg.PriorAcceptedValue,
		}
	}
	if p.acceptRequestSent || len(p.promisesReceived) < m.majority {
		return nil
	}

	p.acceptRequestSent = true
	value := p.chooseValue()
	m.logger.Info("got majority of promises",
		zap.Int64("n", p.proposalNumber),
		zap.Int("promises", len(p.promisesReceived)),
		zap.String("value", value))
	return []envelope{broadcast(NewAcceptRequest(m.id, p.proposalNumber, value))}
}

// chooseValue restores the value of the highest-numbered proposal reported
// by any promise, or falls back to the proposer's own value.
func (p *proposerState) chooseValue() string {
	value := p.proposalValue
	highest := NoProposal
	for _, prior := range p.priorAccepted {
		if prior.number > highest {
			highest = prior.number
			value = prior.value
		}
	}
	return value
}
