package enums

import "fmt"

// ReturnStatus tracks a customer return request for a single order item.
type ReturnStatus string

const (
	ReturnStatusPending   ReturnStatus = "pending"
	ReturnStatusApproved  ReturnStatus = "approved"
	ReturnStatusRejected  ReturnStatus = "rejected"
	ReturnStatusCompleted ReturnStatus = "completed"
)

var validReturnStatuses = []ReturnStatus{
	ReturnStatusPending,
	ReturnStatusApproved,
	ReturnStatusRejected,
	ReturnStatusCompleted,
}

// String implements fmt.Stringer.
func (s ReturnStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ReturnStatus.
func (s ReturnStatus) IsValid() bool {
	for _, candidate := range validReturnStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseReturnStatus converts raw input into a ReturnStatus.
func ParseReturnStatus(value string) (ReturnStatus, error) {
	for _, candidate := range validReturnStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return status %q", value)
}
