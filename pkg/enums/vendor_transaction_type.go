package enums

import "fmt"

// VendorTransactionType classifies a vendor ledger row.
type VendorTransactionType string

const (
	VendorTxnEarning    VendorTransactionType = "earning"
	VendorTxnWithdrawal VendorTransactionType = "withdrawal"
	VendorTxnCommission VendorTransactionType = "commission"
	VendorTxnRefund     VendorTransactionType = "refund"
	VendorTxnAdjustment VendorTransactionType = "adjustment"
)

var validVendorTransactionTypes = []VendorTransactionType{
	VendorTxnEarning,
	VendorTxnWithdrawal,
	VendorTxnCommission,
	VendorTxnRefund,
	VendorTxnAdjustment,
}

// String implements fmt.Stringer.
func (t VendorTransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known VendorTransactionType.
func (t VendorTransactionType) IsValid() bool {
	for _, candidate := range validVendorTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// AllowsCredit reports whether the type may increase a wallet.
func (t VendorTransactionType) AllowsCredit() bool {
	return t == VendorTxnEarning || t == VendorTxnAdjustment
}

// AllowsDebit reports whether the type may decrease a wallet.
func (t VendorTransactionType) AllowsDebit() bool {
	switch t {
	case VendorTxnWithdrawal, VendorTxnCommission, VendorTxnRefund, VendorTxnAdjustment:
		return true
	default:
		return false
	}
}

// ParseVendorTransactionType converts raw input into a VendorTransactionType.
func ParseVendorTransactionType(value string) (VendorTransactionType, error) {
	for _, candidate := range validVendorTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vendor transaction type %q", value)
}

// WalletBucket names the wallet field a ledger row settles against.
type WalletBucket string

const (
	WalletBucketBalance WalletBucket = "balance"
	WalletBucketPending WalletBucket = "pending"
)

func (b WalletBucket) IsValid() bool {
	return b == WalletBucketBalance || b == WalletBucketPending
}
