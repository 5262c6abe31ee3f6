package strategy

type State string

type Event string

const (
	StateWaiting State = "WAITING"
	StateOpening State = "OPENING"
	StateOpen    State = "OPEN"
	StateClosing State = "CLOSING"
)

const (
	EventOpenTriggered  Event = "OPEN_TRIGGERED"
	EventOpenVerified   Event = "OPEN_VERIFIED"
	EventOpenFailed     Event = "OPEN_FAILED"
	EventCloseTriggered Event = "CLOSE_TRIGGERED"
	EventCloseVerified  Event = "CLOSE_VERIFIED"
	EventCloseFailed    Event = "CLOSE_FAILED"
)
