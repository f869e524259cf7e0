package enums

import "fmt"

// OfferStatus is the moderation state of a vendor offer.
type OfferStatus string

const (
	OfferStatusPending  OfferStatus = "pending"
	OfferStatusApproved OfferStatus = "approved"
	OfferStatusRejected OfferStatus = "rejected"
	OfferStatusDisabled OfferStatus = "disabled"
)

var validOfferStatuses = []OfferStatus{
	OfferStatusPending,
	OfferStatusApproved,
	OfferStatusRejected,
	OfferStatusDisabled,
}

func (s OfferStatus) String() string {
	return string(s)
}

func (s OfferStatus) IsValid() bool {
	for _, candidate := range validOfferStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOfferStatus converts raw input into an OfferStatus.
func ParseOfferStatus(value string) (OfferStatus, error) {
	for _, candidate := range validOfferStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid offer status %q", value)
}
