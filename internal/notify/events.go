package notify

import (
	"encoding/json"
	"fmt"
)

// Routing keys published by the engine.
const (
	RKVoucherIssued    = "payment.voucher_issued"
	RKPaymentFailed    = "payment.failed"
	RKPaymentRefunded  = "payment.refunded"
	RKBookingConfirmed = "booking.confirmed"
	RKReminderGentle   = "reminder.gentle"
	RKReminderUrgent   = "reminder.urgent"
	RKPayoutAccrued    = "payout.accrued"
)

type VoucherIssued struct {
	SessionRef   string `json:"session_ref"`
	GuestEmail   string `json:"guest_email"`
	Instructions string `json:"instructions"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type PaymentFailed struct {
	SessionRef  string `json:"session_ref"`
	GuestEmail  string `json:"guest_email"`
	FailureCode string `json:"failure_code,omitempty"`
}

type PaymentRefunded struct {
	SessionRef   string `json:"session_ref"`
	GuestEmail   string `json:"guest_email"`
	ConflictType string `json:"conflict_type"`
	Reason       string `json:"reason"`
	Amount       int64  `json:"amount"`
	Percentage   int    `json:"percentage"`
	Currency     string `json:"currency"`
}

type BookingConfirmed struct {
	BookingID  string `json:"booking_id"`
	SessionRef string `json:"session_ref"`
	ExpertID   string `json:"expert_id"`
	GuestEmail string `json:"guest_email"`
	Start      int64  `json:"start"` // unix seconds
	End        int64  `json:"end"`
}

type Reminder struct {
	SessionRef string `json:"session_ref"`
	GuestEmail string `json:"guest_email"`
	GuestName  string `json:"guest_name"`
	Start      int64  `json:"start"`
	ExpiresAt  int64  `json:"expires_at"`
}

func MustUnmarshal[T any](b []byte) (T, error) {
	var t T
	if err := json.Unmarshal(b, &t); err != nil {
		var zero T
		return zero, fmt.Errorf("decode payload failed: %w", err)
	}
	return t, nil
}
