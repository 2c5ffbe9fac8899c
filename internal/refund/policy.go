package refund

import (
	"fmt"
	"log"

	"github.com/you/meeting-payments/internal/conflict"
)

type PolicyVersion string

const (
	// PolicyV1Tiered: full refund when the conflict is the expert's doing,
	// 90% when the guest's late payment caused it. Retired but kept
	// addressable for audit replay of old refunds.
	PolicyV1Tiered PolicyVersion = "v1-tiered"
	// PolicyV2CustomerFirst: full refund, zero fee, for every conflict.
	PolicyV2CustomerFirst PolicyVersion = "v2-customer-first"
)

// Quote is the outcome of applying a policy to an amount. Amounts are in
// minor units; Refund + Fee always equals the original amount.
type Quote struct {
	Refund  int64
	Fee     int64
	Percent int
}

type policyFn func(amount int64, ct conflict.Type) Quote

var policies = map[PolicyVersion]policyFn{
	PolicyV1Tiered:        tiered,
	PolicyV2CustomerFirst: customerFirst,
}

// Calculate is pure: same inputs, same quote, regardless of which version is
// currently active. Unknown policy versions are a configuration error.
func Calculate(amount int64, ct conflict.Type, version PolicyVersion) (Quote, error) {
	fn, ok := policies[version]
	if !ok {
		return Quote{}, fmt.Errorf("unknown refund policy %q", version)
	}
	return fn(amount, ct), nil
}

// ParseVersion validates a configured version string.
func ParseVersion(s string) (PolicyVersion, error) {
	v := PolicyVersion(s)
	if _, ok := policies[v]; !ok {
		return "", fmt.Errorf("unknown refund policy %q", s)
	}
	return v, nil
}

func tiered(amount int64, ct conflict.Type) Quote {
	switch ct {
	case conflict.BlockedDate, conflict.TimeOverlap:
		// Expert-caused: the guest gets everything back.
		return full(amount)
	case conflict.MinNotice:
		refund := amount * 90 / 100
		return Quote{Refund: refund, Fee: amount - refund, Percent: 90}
	default:
		// An unrecognized conflict type must never block a refund; take the
		// most generous branch and flag the configuration problem.
		log.Printf("[refund] unrecognized conflict type %q, defaulting to full refund", ct)
		return full(amount)
	}
}

func customerFirst(amount int64, _ conflict.Type) Quote {
	return full(amount)
}

func full(amount int64) Quote {
	return Quote{Refund: amount, Fee: 0, Percent: 100}
}
