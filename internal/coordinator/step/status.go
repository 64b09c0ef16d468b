package step

// Status is the lifecycle state of one saga step. Steps never compensate
// themselves; compensation is tracked on the owning instance.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusStarted   Status = "STARTED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusPending, StatusStarted, StatusRunning, StatusCompleted, StatusFailed}
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusStarted, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }
