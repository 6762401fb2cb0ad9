package paxos

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
)

// NoProposal marks an absent proposal number.
const NoProposal int64 = -1

var ErrMalformedMessage = errors.New("malformed message")

type MessageType uint8

const (
	Prepare MessageType = iota + 1
	Promise
	AcceptRequest
	Accepted
	Learn
)

func (t MessageType) String() string {
	switch t {
	case Prepare:
		return "PREPARE"
	case Promise:
		return "PROMISE"
	case AcceptRequest:
		return "ACCEPT_REQUEST"
	case Accepted:
		return "ACCEPTED"
	case Learn:
		return "LEARN"
	default:
		return fmt.Sprintf("unknown message type: %d", t)
	}
}

// Message is one protocol step. An empty Value means no value.
type Message struct {
	Type           MessageType
	SenderID       int
	ProposalNumber int64
	Value          string

	// Set on PROMISE only; NoProposal and "" when nothing was accepted.
	PriorAcceptedProposalNumber int64
	PriorAcceptedValue          string
}

func NewPrepare(sender int, n int64) Message {
	return Message{Type: Prepare, SenderID: sender, ProposalNumber: n, PriorAcceptedProposalNumber: NoProposal}
}

func NewPromise(sender int, n int64, priorNumber int64, priorValue string) Message {
	return Message{
		Type:                        Promise,
		SenderID:                    sender,
		ProposalNumber:              n,
		PriorAcceptedProposalNumber: priorNumber,
		PriorAcceptedValue:          priorValue,
	}
}

func NewAcceptRequest(sender int, n int64, value string) Message {
	return Message{Type: AcceptRequest, SenderID: sender, ProposalNumber: n, Value: value, PriorAcceptedProposalNumber: NoProposal}
}

func NewAccepted(sender int, n int64, value string) Message {
	return Message{Type: Accepted, SenderID: sender, ProposalNumber: n, Value: value, PriorAcceptedProposalNumber: NoProposal}
}

func NewLearn(sender int, n int64, value string) Message {
	return Message{Type: Learn, SenderID: sender, ProposalNumber: n, Value: value, PriorAcceptedProposalNumber: NoProposal}
}

// HasPrior reports whether a promise carries a previously accepted proposal.
func (m Message) HasPrior() bool {
	return m.PriorAcceptedProposalNumber >= 0
}

func (m Message) Validate() error {
	if m.Type < Prepare || m.Type > Learn {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, m.Type)
	}
	if m.ProposalNumber < 0 {
		return fmt.Errorf("%w: proposal number %d", ErrMalformedMessage, m.ProposalNumber)
	}
	if m.PriorAcceptedProposalNumber < NoProposal {
		return fmt.Errorf("%w: prior proposal number %d", ErrMalformedMessage, m.PriorAcceptedProposalNumber)
	}
	if m.HasPrior() != (m.PriorAcceptedValue != "") {
		return fmt.Errorf("%w: prior value present iff prior proposal number is set", ErrMalformedMessage)
	}
	if m.HasPrior() && m.Type != Promise {
		return fmt.Errorf("%w: %v carries a prior accepted proposal", ErrMalformedMessage, m.Type)
	}
	switch m.Type {
	case Prepare, Promise:
		if m.Value != "" {
			return fmt.Errorf("%w: %v carries a value", ErrMalformedMessage, m.Type)
		}
	default:
		if m.Value == "" {
			return fmt.Errorf("%w: %v without a value", ErrMalformedMessage, m.Type)
		}
	}
	return nil
}

func (m Message) String() string {
	s := fmt.Sprintf("%v{from: %d, n: %d", m.Type, m.SenderID, m.ProposalNumber)
	if m.Value != "" {
		s += fmt.Sprintf(", v: %q", m.Value)
	}
	if m.HasPrior() {
		s += fmt.Sprintf(", prior: <%d, %q>", m.PriorAcceptedProposalNumber, m.PriorAcceptedValue)
	}
	return s + "}"
}

// WriteMessage encodes a single message onto w.
func WriteMessage(w io.Writer, m Message) error {
	return gob.NewEncoder(w).Encode(&m)
}

// ReadMessage decodes and validates a single message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var m Message
	if err := gob.NewDecoder(r).Decode(&m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
