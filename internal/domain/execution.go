package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BundleStatus is the lifecycle state of a Jito bundle.
type BundleStatus string

const (
	BundleLanded  BundleStatus = "Landed"
	BundleFailed  BundleStatus = "Failed"
	BundlePending BundleStatus = "Pending"
	BundleInvalid BundleStatus = "Invalid"
	BundleUnknown BundleStatus = "Unknown"
	BundleTimeout BundleStatus = "Timeout"
)

// ParseBundleStatus maps the block engine's status string onto BundleStatus.
// Unrecognised values become BundleUnknown.
func ParseBundleStatus(s string) BundleStatus {
	switch BundleStatus(s) {
	case BundleLanded, BundleFailed, BundlePending, BundleInvalid:
		return BundleStatus(s)
	default:
		return BundleUnknown
	}
}

// Final reports whether no further status change is expected.
func (s BundleStatus) Final() bool {
	return s == BundleLanded || s == BundleFailed
}

// Execution records one attempt to land an opportunity on chain.
type Execution struct {
	ID            string          `json:"id"`
	OpportunityID string          `json:"opportunity_id"`
	BundleID      string          `json:"bundle_id"`
	Status        BundleStatus    `json:"status"`
	ProfitUSD     decimal.Decimal `json:"profit_usd"`
	Error         string          `json:"error,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}
