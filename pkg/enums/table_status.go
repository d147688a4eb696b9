package enums

import "fmt"

// TableStatus tracks the lifecycle of a dining table's current order.
type TableStatus string

const (
	TableStatusFree      TableStatus = "free"
	TableStatusOccupied  TableStatus = "occupied"
	TableStatusPreparing TableStatus = "preparing"
	TableStatusReady     TableStatus = "ready"
	TableStatusFinished  TableStatus = "finished"
)

var validTableStatuses = []TableStatus{
	TableStatusFree,
	TableStatusOccupied,
	TableStatusPreparing,
	TableStatusReady,
	TableStatusFinished,
}

// String implements fmt.Stringer.
func (s TableStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TableStatus.
func (s TableStatus) IsValid() bool {
	for _, candidate := range validTableStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTableStatus converts raw input into a TableStatus.
func ParseTableStatus(value string) (TableStatus, error) {
	for _, candidate := range validTableStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid table status %q", value)
}
