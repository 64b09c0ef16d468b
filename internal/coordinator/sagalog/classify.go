package sagalog

import "fmt"

// Classify maps a step status to the log severity.
// FAILED is an error, RUNNING and STARTED are debug noise, the rest is info.
func Classify(status string) Type {
	switch status {
	case "FAILED":
		return TypeError
	case "RUNNING", "STARTED":
		return TypeDebug
	default:
		return TypeInfo
	}
}

// Message renders the log line for a step transition. The error suffix is
// only appended for a non-empty error message.
func Message(status string, errorMessage *string) string {
	msg := fmt.Sprintf(`Saga step status changed to "%s"`, status)
	if errorMessage != nil && *errorMessage != "" {
		msg += ". Error: " + *errorMessage
	}
	return msg
}
