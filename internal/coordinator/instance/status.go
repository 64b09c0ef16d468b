package instance

// Status is the coarse lifecycle state of a saga instance.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusStarted      Status = "STARTED"
	StatusRunning      Status = "RUNNING"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
	StatusCompensating Status = "COMPENSATING"
	StatusCompensated  Status = "COMPENSATED"
)

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusPending,
		StatusStarted,
		StatusRunning,
		StatusCompleted,
		StatusFailed,
		StatusCompensating,
		StatusCompensated,
	}
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusStarted, StatusRunning, StatusCompleted,
		StatusFailed, StatusCompensating, StatusCompensated:
		return true
	}
	return false
}

// Terminal reports whether s ends the instance lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCompensated
}

func (s Status) String() string { return string(s) }
