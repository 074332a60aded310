package enums

import (
	"fmt"
	"strings"
)

// BillingInterval is the cadence recorded on a plan catalog entry.
type BillingInterval string

const (
	BillingIntervalMonthly BillingInterval = "monthly"
	BillingIntervalAnnual  BillingInterval = "annual"
)

var validBillingIntervals = []BillingInterval{
	BillingIntervalMonthly,
	BillingIntervalAnnual,
}

// String implements fmt.Stringer.
func (b BillingInterval) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillingInterval.
func (b BillingInterval) IsValid() bool {
	for _, candidate := range validBillingIntervals {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBillingInterval converts raw input into a BillingInterval. Stripe's
// recurring interval names ("month", "year") are accepted as aliases.
func ParseBillingInterval(value string) (BillingInterval, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "month", "monthly":
		return BillingIntervalMonthly, nil
	case "year", "yearly", "annual":
		return BillingIntervalAnnual, nil
	}
	return "", fmt.Errorf("invalid billing interval %q", value)
}
