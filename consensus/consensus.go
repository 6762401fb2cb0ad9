package consensus

// Decision reports that a member learned a value.
type Decision struct {
	MemberID int
	Value    string
}

type ConsensusProvider interface {
	Propose(value string) error
	Commit() <-chan Decision
}
