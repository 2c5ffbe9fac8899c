package refund

import (
	"testing"

	"github.com/you/meeting-payments/internal/conflict"
)

func TestCustomerFirstAlwaysFullRefund(t *testing.T) {
	t.Parallel()

	amounts := []int64{0, 1, 99, 2500, 10_000_00}
	types := []conflict.Type{conflict.BlockedDate, conflict.TimeOverlap, conflict.MinNotice, conflict.Type("mystery")}
	for _, amt := range amounts {
		for _, ct := range types {
			q, err := Calculate(amt, ct, PolicyV2CustomerFirst)
			if err != nil {
				t.Fatalf("calculate(%d, %s): %v", amt, ct, err)
			}
			if q.Refund != amt || q.Fee != 0 || q.Percent != 100 {
				t.Fatalf("customer-first quote for %d/%s = %+v, want full refund", amt, ct, q)
			}
		}
	}
}

func TestTieredPolicy(t *testing.T) {
	t.Parallel()

	q, err := Calculate(1000, conflict.BlockedDate, PolicyV1Tiered)
	if err != nil {
		t.Fatal(err)
	}
	if q.Refund != 1000 || q.Fee != 0 || q.Percent != 100 {
		t.Fatalf("expert-caused conflict should refund fully, got %+v", q)
	}

	q, err = Calculate(1000, conflict.MinNotice, PolicyV1Tiered)
	if err != nil {
		t.Fatal(err)
	}
	if q.Refund != 900 || q.Fee != 100 || q.Percent != 90 {
		t.Fatalf("late-payment conflict should refund 90%%, got %+v", q)
	}
	if q.Refund+q.Fee != 1000 {
		t.Fatalf("refund + fee must equal original amount")
	}
}

func TestTieredUnknownConflictTypeIsGenerous(t *testing.T) {
	t.Parallel()

	q, err := Calculate(500, conflict.Type("not_a_real_type"), PolicyV1Tiered)
	if err != nil {
		t.Fatal(err)
	}
	if q.Refund != 500 || q.Fee != 0 {
		t.Fatalf("unknown conflict type must fall back to full refund, got %+v", q)
	}
}

func TestRetiredVersionStaysAddressable(t *testing.T) {
	t.Parallel()

	// Audit replay of a v1 refund must compute the historical quote even
	// though v2 is the active version.
	q, err := Calculate(2000, conflict.MinNotice, PolicyV1Tiered)
	if err != nil {
		t.Fatal(err)
	}
	if q.Percent != 90 {
		t.Fatalf("v1 replay changed outcome: %+v", q)
	}
}

func TestParseVersion(t *testing.T) {
	t.Parallel()

	if _, err := ParseVersion("v2-customer-first"); err != nil {
		t.Fatalf("known version rejected: %v", err)
	}
	if _, err := ParseVersion("v9-imaginary"); err == nil {
		t.Fatal("unknown version accepted")
	}
}
