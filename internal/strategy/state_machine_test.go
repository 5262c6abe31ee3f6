package strategy

import "testing"

func TestStateMachineFullCycle(t *testing.T) {
	sm := NewStateMachine()
	if sm.State() != StateWaiting {
		t.Fatalf("expected %s, got %s", StateWaiting, sm.State())
	}
	if sm.Apply(EventOpenTriggered) != StateOpening {
		t.Fatalf("expected %s, got %s", StateOpening, sm.State())
	}
	if sm.Apply(EventOpenVerified) != StateOpen {
		t.Fatalf("expected %s, got %s", StateOpen, sm.State())
	}
	if sm.Apply(EventCloseTriggered) != StateClosing {
		t.Fatalf("expected %s, got %s", StateClosing, sm.State())
	}
	if sm.Apply(EventCloseVerified) != StateWaiting {
		t.Fatalf("expected %s, got %s", StateWaiting, sm.State())
	}
}

func TestStateMachineRollbacks(t *testing.T) {
	sm := NewStateMachine()
	sm.Apply(EventOpenTriggered)
	if sm.Apply(EventOpenFailed) != StateWaiting {
		t.Fatalf("expected open failure to fall back to %s, got %s", StateWaiting, sm.State())
	}
	sm.Apply(EventOpenTriggered)
	sm.Apply(EventOpenVerified)
	sm.Apply(EventCloseTriggered)
	if sm.Apply(EventCloseFailed) != StateOpen {
		t.Fatalf("expected close failure to revert to %s, got %s", StateOpen, sm.State())
	}
}

func TestStateMachineIgnoresInvalidEvents(t *testing.T) {
	sm := NewStateMachine()
	if sm.Apply(EventCloseTriggered) != StateWaiting {
		t.Fatalf("invalid event should not change state")
	}
	if sm.Apply(EventCloseVerified) != StateWaiting {
		t.Fatalf("invalid event should not change state")
	}
}

func TestStateMachineSetState(t *testing.T) {
	sm := NewStateMachine()
	sm.SetState(StateOpen)
	if sm.State() != StateOpen {
		t.Fatalf("expected %s, got %s", StateOpen, sm.State())
	}
}
