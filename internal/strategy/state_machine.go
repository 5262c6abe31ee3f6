package strategy

import "sync"

// StateMachine holds the single process-wide lifecycle state. Only the
// reconciliation loop applies events; nothing else mutates state.
type StateMachine struct {
	mu    sync.Mutex
	state State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateWaiting}
}

func (s *StateMachine) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState seeds the machine from startup reconciliation.
func (s *StateMachine) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Apply advances the machine; events that do not apply to the current state
// leave it unchanged.
func (s *StateMachine) Apply(event Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = nextState(s.state, event)
	return s.state
}

func nextState(current State, event Event) State {
	switch current {
	case StateWaiting:
		if event == EventOpenTriggered {
			return StateOpening
		}
	case StateOpening:
		if event == EventOpenVerified {
			return StateOpen
		}
		if event == EventOpenFailed {
			return StateWaiting
		}
	case StateOpen:
		if event == EventCloseTriggered {
			return StateClosing
		}
	case StateClosing:
		if event == EventCloseVerified {
			return StateWaiting
		}
		if event == EventCloseFailed {
			return StateOpen
		}
	}
	return current
}
