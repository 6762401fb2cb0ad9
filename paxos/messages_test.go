package paxos

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		msg   Message
		valid bool
	}{
		{"prepare", NewPrepare(1, 17), true},
		{"promise without prior", NewPromise(2, 17, NoProposal, ""), true},
		{"promise with prior", NewPromise(2, 33, 17, "Candidate_A"), true},
		{"accept request", NewAcceptRequest(1, 17, "Candidate_A"), true},
		{"accepted", NewAccepted(2, 17, "Candidate_A"), true},
		{"learn", NewLearn(1, 17, "Candidate_A"), true},
		{"zero message", Message{}, false},
		{"unknown type", Message{Type: 9, PriorAcceptedProposalNumber: NoProposal}, false},
		{"negative proposal number", NewPrepare(1, -4), false},
		{"prior number without value", NewPromise(2, 33, 17, ""), false},
		{"prior value without number", NewPromise(2, 33, NoProposal, "Candidate_A"), false},
		{"prior number below sentinel", NewPromise(2, 33, -2, ""), false},
		{"prepare with value", Message{Type: Prepare, ProposalNumber: 1, Value: "x", PriorAcceptedProposalNumber: NoProposal}, false},
		{"accept request without value", NewAcceptRequest(1, 17, ""), false},
		{"learn without value", NewLearn(1, 17, ""), false},
		{"prior on accepted", Message{Type: Accepted, ProposalNumber: 1, Value: "x", PriorAcceptedProposalNumber: 1, PriorAcceptedValue: "y"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrMalformedMessage), "got %v", err)
			}
		})
	}
}

func TestWireRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	sent := NewPromise(3, 33, 17, "Candidate_A")
	require.NoError(t, WriteMessage(&buf, sent))
	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, sent, got)
}

// A promise with nothing accepted must keep its sentinel across the wire.
func TestWireKeepsNoProposalSentinel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, NewPromise(3, 33, NoProposal, "")))
	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.False(t, got.HasPrior())
	assert.Equal(t, NoProposal, got.PriorAcceptedProposalNumber)
}

func TestReadMessageRejectsGarbage(t *testing.T) {
	_, err := ReadMessage(strings.NewReader("definitely not gob"))
	assert.True(t, errors.Is(err, ErrMalformedMessage))

	_, err = ReadMessage(strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrMalformedMessage))
}

func TestReadMessageRejectsInvalid(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, NewAcceptRequest(1, 17, "")))
	_, err := ReadMessage(&buf)
	assert.True(t, errors.Is(err, ErrMalformedMessage))
}

func TestMessageString(t *testing.T) {
	assert.Equal(t, `PROMISE{from: 3, n: 33, prior: <17, "Candidate_A">}`, NewPromise(3, 33, 17, "Candidate_A").String())
	assert.Equal(t, `LEARN{from: 1, n: 17, v: "Candidate_A"}`, NewLearn(1, 17, "Candidate_A").String())
	assert.Equal(t, "ACCEPT_REQUEST", AcceptRequest.String())
	assert.Contains(t, MessageType(42).String(), "unknown")
}
