package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	OrdersPlaced          Counter
	OrdersFailed          Counter
	OpenCycles            Counter
	CloseCycles           Counter
	ValidationFailures    Counter
	MissedCloseRecoveries Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OrdersPlaced:          n,
		OrdersFailed:          n,
		OpenCycles:            n,
		CloseCycles:           n,
		ValidationFailures:    n,
		MissedCloseRecoveries: n,
	}
}
