package statemachine

import (
	"council/consensus"
	"sync"

	"go.uber.org/zap"
)

// SingleStateMachine holds the single value agreed on by the council.
type SingleStateMachine struct {
	Consensus consensus.ConsensusProvider
	Logger    *zap.Logger

	mu        sync.Mutex
	state     string
	decided   bool
	applied   []consensus.Decision
	conflicts []consensus.Decision
}

func (sm *SingleStateMachine) logger() *zap.Logger {
	if sm.Logger == nil {
		return zap.NewNop()
	}
	return sm.Logger
}

func (sm *SingleStateMachine) Propose(value string) {
	go func() {
		if err := sm.Consensus.Propose(value); err != nil {
			sm.logger().Warn("failed to propose value", zap.String("value", value), zap.Error(err))
		}
	}()
}

// RacePropose proposes all values at the same time and waits for the calls to return.
func (sm *SingleStateMachine) RacePropose(values ...string) {
	wg := sync.WaitGroup{}
	barrier := make(chan struct{})
	for _, value := range values {
		wg.Add(1)
		go func(newValue string) {
			defer wg.Done()
			<-barrier
			if err := sm.Consensus.Propose(newValue); err != nil {
				sm.logger().Warn("failed to propose value", zap.String("value", newValue), zap.Error(err))
			}
		}(value)
	}
	close(barrier)
	wg.Wait()
}

// Run applies decisions until the Commit channel is closed.
func (sm *SingleStateMachine) Run() {
	for decision := range sm.Consensus.Commit() {
		sm.apply(decision)
	}
}

func (sm *SingleStateMachine) apply(decision consensus.Decision) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.applied = append(sm.applied, decision)
	switch {
	case !sm.decided:
		sm.state = decision.Value
		sm.decided = true
		sm.logger().Info("state machine gets committed value", zap.Int("member", decision.MemberID), zap.String("value", decision.Value))
	case decision.Value != sm.state:
		sm.conflicts = append(sm.conflicts, decision)
		sm.logger().Error("conflicting committed value",
			zap.Int("member", decision.MemberID),
			zap.String("value", decision.Value),
			zap.String("state", sm.state))
	}
}

func (sm *SingleStateMachine) State() (string, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state, sm.decided
}

// Applied returns every decision seen so far, in arrival order.
func (sm *SingleStateMachine) Applied() []consensus.Decision {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return append([]consensus.Decision(nil), sm.applied...)
}

func (sm *SingleStateMachine) Conflicts() []consensus.Decision {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return append([]consensus.Decision(nil), sm.conflicts...)
}
