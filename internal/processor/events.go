package processor

import (
	"fmt"
	"time"
)

// EventType is the closed set of processor lifecycle events the engine
// understands. Apply refuses anything outside it.
type EventType string

const (
	EventCreated        EventType = "payment.created"
	EventRequiresAction EventType = "payment.requires_action"
	EventSucceeded      EventType = "payment.succeeded"
	EventFailed         EventType = "payment.failed"
)

func ParseEventType(s string) (EventType, error) {
	switch t := EventType(s); t {
	case EventCreated, EventRequiresAction, EventSucceeded, EventFailed:
		return t, nil
	default:
		return "", fmt.Errorf("unknown event type %q", s)
	}
}

// Event is one processor lifecycle notification, already verified and
// translated from the wire format. SessionRef is the correlation id linking
// the checkout, its payment and any refund.
type Event struct {
	ID         string
	Type       EventType
	SessionRef string
	PaymentRef string

	// Slot intent, carried in the checkout metadata.
	ExpertID   string
	GuestEmail string
	GuestName  string
	StartTime  time.Time
	EndTime    time.Time

	Amount       int64
	Currency     string
	Method       string
	Instructions string // voucher / authorize metadata for delayed methods
	FailureCode  string
	OccurredAt   time.Time
}
