package processor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/you/meeting-payments/internal/conflict"
	"github.com/you/meeting-payments/internal/domain"
	"github.com/you/meeting-payments/internal/refund"
	"github.com/you/meeting-payments/internal/repository"
)

// Reservations is the slice of the reservation store the processor drives.
type Reservations interface {
	Reserve(ctx context.Context, res *domain.Reservation) error
	BySessionRef(ctx context.Context, sessionRef string) (*domain.Reservation, error)
	LinkPayment(ctx context.Context, sessionRef, paymentRef, instructions string) error
	Delete(ctx context.Context, id string) error
}

// Bookings covers finalization, refund records and event dedup.
type Bookings interface {
	Finalize(ctx context.Context, b *domain.Booking, reservationID string) (bool, error)
	BySessionRef(ctx context.Context, sessionRef string) (*domain.Booking, error)
	ClaimRefund(ctx context.Context, rec *domain.RefundRecord) (bool, error)
	SetRefundRef(ctx context.Context, sessionRef, refundRef string) error
	RefundBySessionRef(ctx context.Context, sessionRef string) (*domain.RefundRecord, error)
	AlreadyProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventKey string) error
}

// Refunder issues refunds with the processor.
type Refunder interface {
	Refund(ctx context.Context, sessionRef string, amount int64) (string, error)
}

// Detector checks the expert's calendar for the intended slot.
type Detector interface {
	Detect(ctx context.Context, expertID string, start, end, now time.Time) (conflict.Result, error)
}

// Publisher fans engine events out to the notification worker and payout
// accounting. *mq.Publisher satisfies it.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

type Config struct {
	// PaymentWindow is how long after checkout creation a delayed payment may
	// clear before the slot has to be re-validated.
	PaymentWindow  time.Duration
	ReservationTTL time.Duration
	Policy         refund.PolicyVersion
}

type Processor struct {
	res  Reservations
	book Bookings
	gw   Refunder
	det  Detector
	pub  Publisher
	cfg  Config
	now  func() time.Time
}

func New(res Reservations, book Bookings, gw Refunder, det Detector, pub Publisher, cfg Config) *Processor {
	return &Processor{res: res, book: book, gw: gw, det: det, pub: pub, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// Apply processes one lifecycle event idempotently. Redelivery is a no-op:
// exact replays short-circuit on the processed-event record, and every
// handler is an upsert guarded by a unique constraint besides.
func (p *Processor) Apply(ctx context.Context, evt Event) error {
	if evt.ID == "" || evt.SessionRef == "" {
		return errors.New("event missing id or session ref")
	}
	seen, err := p.book.AlreadyProcessed(ctx, evt.ID)
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if seen {
		return nil
	}

	switch evt.Type {
	case EventCreated:
		err = p.applyCreated(ctx, evt)
	case EventRequiresAction:
		err = p.applyRequiresAction(ctx, evt)
	case EventSucceeded:
		err = p.applySucceeded(ctx, evt)
	case EventFailed:
		err = p.applyFailed(ctx, evt)
	default:
		return fmt.Errorf("unknown event type %q", evt.Type)
	}
	if err != nil {
		return err
	}
	return p.book.MarkProcessed(ctx, evt.ID, string(evt.Type))
}

// applyCreated ensures the hold exists for delayed methods. The booking
// endpoint normally reserved already; re-entry for the same guest is a no-op,
// and a lost reservation is rebuilt from the checkout metadata.
func (p *Processor) applyCreated(ctx context.Context, evt Event) error {
	if !isDelayed(evt.Method) {
		return nil
	}
	_, err := p.ensureReservation(ctx, evt)
	if errors.Is(err, repository.ErrSlotTaken) {
		// Someone else holds the slot; the succeeded handler will refund.
		log.Printf("[processor] created event for %s lost slot race", evt.SessionRef)
		return nil
	}
	return err
}

func (p *Processor) applyRequiresAction(ctx context.Context, evt Event) error {
	if isDelayed(evt.Method) {
		if _, err := p.ensureReservation(ctx, evt); err != nil && !errors.Is(err, repository.ErrSlotTaken) {
			return err
		}
		if err := p.res.LinkPayment(ctx, evt.SessionRef, evt.PaymentRef, evt.Instructions); err != nil {
			return fmt.Errorf("link payment: %w", err)
		}
	}
	p.notify(ctx, "payment.voucher_issued", map[string]any{
		"session_ref":  evt.SessionRef,
		"guest_email":  evt.GuestEmail,
		"instructions": evt.Instructions,
		"amount":       evt.Amount,
		"currency":     evt.Currency,
	})
	return nil
}

// applySucceeded decides between finalizing the meeting and refunding a late,
// conflicted payment. Lateness is measured against our own clock from the
// moment the checkout was created (the reservation row's CreatedAt), not the
// processor's event timestamp: delivery delay can't make an on-time payment
// late, and the processor's clock is outside our trust boundary.
func (p *Processor) applySucceeded(ctx context.Context, evt Event) error {
	if b, err := p.book.BySessionRef(ctx, evt.SessionRef); err != nil {
		return err
	} else if b != nil {
		return nil // already finalized
	}

	res, err := p.res.BySessionRef(ctx, evt.SessionRef)
	if err != nil {
		return err
	}

	if rec, err := p.book.RefundBySessionRef(ctx, evt.SessionRef); err != nil {
		return err
	} else if rec != nil {
		if rec.RefundRef != "" {
			return nil // already refunded, never refund twice
		}
		// Claimed earlier but the gateway call never completed; finish it.
		return p.completeRefund(ctx, evt, res, rec, "")
	}

	// A delayed payment with no surviving hold (expired and swept, or lost
	// the slot race) is late by definition: its claim on the slot is gone.
	now := p.now()
	late := isDelayed(evt.Method) &&
		(res == nil || now.Sub(res.CreatedAt) > p.cfg.PaymentWindow)
	if late {
		expertID, start, end := evt.ExpertID, evt.StartTime, evt.EndTime
		if res != nil {
			expertID, start, end = res.ExpertID, res.StartTime, res.EndTime
		}
		c, err := p.det.Detect(ctx, expertID, start, end, now)
		if err != nil {
			return fmt.Errorf("conflict detect: %w", err)
		}
		if c.Type != conflict.None {
			return p.refundLatePayment(ctx, evt, res, c)
		}
	}

	b := &domain.Booking{
		ExpertID:      evt.ExpertID,
		GuestEmail:    evt.GuestEmail,
		GuestName:     evt.GuestName,
		StartTime:     evt.StartTime,
		DurationMin:   int(evt.EndTime.Sub(evt.StartTime) / time.Minute),
		PaymentStatus: domain.PaymentSucceeded,
		SessionRef:    evt.SessionRef,
	}
	if res != nil {
		// The hold carries the authoritative slot intent.
		b.ExpertID = res.ExpertID
		b.GuestEmail = res.GuestEmail
		b.GuestName = res.GuestName
		b.StartTime = res.StartTime
		b.DurationMin = int(res.EndTime.Sub(res.StartTime) / time.Minute)
	}
	reservationID := ""
	if res != nil {
		reservationID = res.ID
	}
	created, err := p.book.Finalize(ctx, b, reservationID)
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	if !created {
		return nil
	}

	p.notify(ctx, "booking.confirmed", map[string]any{
		"booking_id":  b.ID,
		"session_ref": b.SessionRef,
		"expert_id":   b.ExpertID,
		"guest_email": b.GuestEmail,
		"start":       b.StartTime.Unix(),
		"end":         b.EndTime().Unix(),
	})
	// Downstream payout accounting; unlike notifications this must not be lost,
	// the worker requeues on failure.
	p.notify(ctx, "payout.accrued", map[string]any{
		"session_ref": b.SessionRef,
		"expert_id":   b.ExpertID,
		"amount":      evt.Amount,
		"currency":    evt.Currency,
	})
	return nil
}

// refundLatePayment claims the refund record before touching the gateway.
// The claim is the arbiter under concurrent delivery of the same event: the
// losing handler sees claimed=false and walks away without paying.
func (p *Processor) refundLatePayment(ctx context.Context, evt Event, res *domain.Reservation, c conflict.Result) error {
	quote, err := refund.Calculate(evt.Amount, c.Type, p.cfg.Policy)
	if err != nil {
		return fmt.Errorf("refund quote: %w", err)
	}
	rec := &domain.RefundRecord{
		ID:            uuid.NewString(),
		SessionRef:    evt.SessionRef,
		OriginalAmt:   evt.Amount,
		RefundAmt:     quote.Refund,
		Fee:           quote.Fee,
		Percentage:    quote.Percent,
		ConflictType:  string(c.Type),
		PolicyVersion: string(p.cfg.Policy),
		Currency:      evt.Currency,
		CreatedAt:     p.now(),
	}
	claimed, err := p.book.ClaimRefund(ctx, rec)
	if err != nil {
		return fmt.Errorf("claim refund: %w", err)
	}
	if !claimed {
		return nil // another delivery owns this refund
	}
	return p.completeRefund(ctx, evt, res, rec, c.Reason)
}

// completeRefund issues the gateway refund for a claimed record, then stores
// the refund ref, retires the hold and notifies the guest.
func (p *Processor) completeRefund(ctx context.Context, evt Event, res *domain.Reservation, rec *domain.RefundRecord, reason string) error {
	refundRef, err := p.gw.Refund(ctx, rec.SessionRef, rec.RefundAmt)
	if err != nil {
		// The claim stays; redelivery resumes from here.
		return fmt.Errorf("issue refund: %w", err)
	}
	if err := p.book.SetRefundRef(ctx, rec.SessionRef, refundRef); err != nil {
		return fmt.Errorf("store refund ref: %w", err)
	}
	guestEmail := evt.GuestEmail
	if res != nil {
		guestEmail = res.GuestEmail
		if err := p.res.Delete(ctx, res.ID); err != nil {
			return fmt.Errorf("retire hold: %w", err)
		}
	}
	p.notify(ctx, "payment.refunded", map[string]any{
		"session_ref":   rec.SessionRef,
		"guest_email":   guestEmail,
		"conflict_type": rec.ConflictType,
		"reason":        reason,
		"amount":        rec.RefundAmt,
		"percentage":    rec.Percentage,
		"currency":      rec.Currency,
	})
	return nil
}

// applyFailed leaves any hold to expire naturally so the guest can retry the
// same slot until then.
func (p *Processor) applyFailed(ctx context.Context, evt Event) error {
	p.notify(ctx, "payment.failed", map[string]any{
		"session_ref":  evt.SessionRef,
		"guest_email":  evt.GuestEmail,
		"failure_code": evt.FailureCode,
	})
	return nil
}

func (p *Processor) ensureReservation(ctx context.Context, evt Event) (*domain.Reservation, error) {
	res := &domain.Reservation{
		ExpertID:   evt.ExpertID,
		GuestEmail: evt.GuestEmail,
		GuestName:  evt.GuestName,
		StartTime:  evt.StartTime,
		EndTime:    evt.EndTime,
		ExpiresAt:  p.now().Add(p.cfg.ReservationTTL),
		SessionRef: evt.SessionRef,
	}
	if err := p.res.Reserve(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// notify publishes a notification event; failures are logged and swallowed,
// they never roll back payment or booking state.
func (p *Processor) notify(ctx context.Context, key string, payload map[string]any) {
	if p.pub == nil {
		return
	}
	if err := p.pub.PublishJSON(ctx, key, payload); err != nil {
		log.Printf("[processor] publish %s failed: %v", key, err)
	}
}

func isDelayed(method string) bool {
	return method != "" && method != "card"
}
