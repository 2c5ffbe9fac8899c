package notify

import (
	"context"
	"log"
)

// Template ids known to the notification provider.
const (
	TplVoucherIssued    = "voucher-issued"
	TplPaymentFailed    = "payment-failed"
	TplRefundIssued     = "refund-issued"
	TplBookingConfirmed = "booking-confirmed"
	TplReminderGentle   = "payment-reminder-gentle"
	TplReminderUrgent   = "payment-reminder-urgent"
)

// Provider delivers one templated message. Implementations wrap whatever
// channel is configured (email, SMS); rendering happens on the provider side.
type Provider interface {
	Send(ctx context.Context, recipient, templateID string, vars map[string]any, locale string) error
}

// ConsoleProvider logs instead of sending; the dev default.
type ConsoleProvider struct{}

func NewConsole() *ConsoleProvider {
	return &ConsoleProvider{}
}

func (c *ConsoleProvider) Send(_ context.Context, recipient, templateID string, vars map[string]any, locale string) error {
	log.Printf("[notify] to=%s template=%s locale=%s vars=%v", recipient, templateID, locale, vars)
	return nil
}
