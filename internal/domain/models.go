package domain

import "time"

// Payment status of a booking.
const (
	PaymentPending   = "PENDING"
	PaymentSucceeded = "SUCCEEDED"
	PaymentFailed    = "FAILED"
	PaymentRefunded  = "REFUNDED"
)

// Reservation is a time-boxed hold on a slot while a delayed payment clears.
// The unique index on (expert_id, start_time) is the slot ownership guard:
// concurrent inserts by different guests collide on it and exactly one row
// survives. Lapsed rows are cleared by Reserve and the sweep so they cannot
// hold the index hostage.
type Reservation struct {
	ID         string `gorm:"primaryKey"`
	ExpertID   string `gorm:"uniqueIndex:ux_reservation_slot;index"`
	GuestEmail string
	GuestName  string
	StartTime  time.Time `gorm:"uniqueIndex:ux_reservation_slot;index"`
	EndTime    time.Time
	ExpiresAt  time.Time `gorm:"index"`

	// Foreign identifiers into the payment processor's domain.
	SessionRef   string  `gorm:"uniqueIndex"`
	PaymentRef   *string `gorm:"index"`
	Instructions string  // voucher / authorize metadata, JSON or URI

	GentleReminderAt *time.Time
	UrgentReminderAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the hold still owns its slot.
func (r Reservation) Active(now time.Time) bool {
	return r.ExpiresAt.After(now)
}

// Booking is the durable confirmed meeting, created exactly once per
// successful payment. SessionRef is unique so duplicate delivery of the
// succeeded event cannot finalize twice.
type Booking struct {
	ID            string `gorm:"primaryKey"`
	ExpertID      string `gorm:"index"`
	GuestEmail    string
	GuestName     string
	StartTime     time.Time `gorm:"index"`
	DurationMin   int
	PaymentStatus string `gorm:"index"`
	SessionRef    string `gorm:"uniqueIndex"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (b Booking) EndTime() time.Time {
	return b.StartTime.Add(time.Duration(b.DurationMin) * time.Minute)
}

// RefundRecord is written once per issued refund so downstream accounting can
// reconcile against the processor. Amounts are in minor units.
type RefundRecord struct {
	ID            string `gorm:"primaryKey"`
	SessionRef    string `gorm:"uniqueIndex"`
	OriginalAmt   int64
	RefundAmt     int64
	Fee           int64
	Percentage    int
	ConflictType  string
	PolicyVersion string
	RefundRef     string // processor refund id
	Currency      string
	CreatedAt     time.Time
}

// ProcessedEvent dedupes inbound processor events under redelivery.
type ProcessedEvent struct {
	ID          string `gorm:"primaryKey"` // processor event id
	EventKey    string `gorm:"index"`
	ProcessedAt time.Time
}

// BlockedDate marks a whole day the expert is unavailable.
type BlockedDate struct {
	ID       uint      `gorm:"primaryKey"`
	ExpertID string    `gorm:"uniqueIndex:ux_blocked_day"`
	Day      time.Time `gorm:"uniqueIndex:ux_blocked_day"` // midnight UTC
	Reason   string
}

// ExpertSettings holds per-expert scheduling configuration.
type ExpertSettings struct {
	ExpertID       string `gorm:"primaryKey"`
	MinNoticeHours int
	UpdatedAt      time.Time
}
