package handler

import "fmt"

// NoEventTypeError - the delivery carried no event type header.
type NoEventTypeError struct{}

func (m *NoEventTypeError) Error() string {
	return "no event type found"
}

// IncompleteConfigError - mandatory configuration is missing at request time.
// The gate refuses to process rather than run unauthenticated.
type IncompleteConfigError struct {
	Missing string
}

func (m *IncompleteConfigError) Error() string {
	return fmt.Sprintf("incomplete configuration: missing %s", m.Missing)
}
