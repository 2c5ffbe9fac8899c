package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/you/meeting-payments/pkg/mq"
)

const defaultLocale = "en"

// Worker consumes engine events and turns them into provider sends.
// Notification failures are logged and acked, they are non-critical; payout
// events are the exception and go back on the queue.
type Worker struct {
	cons     *mq.Consumer
	provider Provider
}

func NewWorker(cons *mq.Consumer, provider Provider) *Worker {
	return &Worker{cons: cons, provider: provider}
}

func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.cons.Deliveries(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := w.handle(ctx, d); err != nil {
				if d.RoutingKey == RKPayoutAccrued {
					log.Printf("[notify] payout handling failed: %v -> requeue", err)
					_ = d.Nack(false, true)
					continue
				}
				log.Printf("[notify] handle %s failed: %v (dropped)", d.RoutingKey, err)
			}
			_ = d.Ack(false)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) error {
	switch d.RoutingKey {
	case RKVoucherIssued:
		ev, err := MustUnmarshal[VoucherIssued](d.Body)
		if err != nil {
			return err
		}
		return w.provider.Send(ctx, ev.GuestEmail, TplVoucherIssued, map[string]any{
			"instructions": ev.Instructions,
			"amount":       ev.Amount,
			"currency":     ev.Currency,
		}, defaultLocale)

	case RKPaymentFailed:
		ev, err := MustUnmarshal[PaymentFailed](d.Body)
		if err != nil {
			return err
		}
		return w.provider.Send(ctx, ev.GuestEmail, TplPaymentFailed, map[string]any{
			"failure_code": ev.FailureCode,
		}, defaultLocale)

	case RKPaymentRefunded:
		ev, err := MustUnmarshal[PaymentRefunded](d.Body)
		if err != nil {
			return err
		}
		return w.provider.Send(ctx, ev.GuestEmail, TplRefundIssued, map[string]any{
			"reason":     ev.Reason,
			"amount":     ev.Amount,
			"percentage": ev.Percentage,
			"currency":   ev.Currency,
		}, defaultLocale)

	case RKBookingConfirmed:
		ev, err := MustUnmarshal[BookingConfirmed](d.Body)
		if err != nil {
			return err
		}
		return w.provider.Send(ctx, ev.GuestEmail, TplBookingConfirmed, map[string]any{
			"booking_id": ev.BookingID,
			"when":       humanTimeRange(ev.Start, ev.End),
		}, defaultLocale)

	case RKReminderGentle, RKReminderUrgent:
		ev, err := MustUnmarshal[Reminder](d.Body)
		if err != nil {
			return err
		}
		tpl := TplReminderGentle
		if d.RoutingKey == RKReminderUrgent {
			tpl = TplReminderUrgent
		}
		return w.provider.Send(ctx, ev.GuestEmail, tpl, map[string]any{
			"guest_name": ev.GuestName,
			"start":      time.Unix(ev.Start, 0).UTC().Format(time.RFC3339),
			"pay_by":     time.Unix(ev.ExpiresAt, 0).UTC().Format(time.RFC3339),
		}, defaultLocale)

	case RKPayoutAccrued:
		// Placeholder sink until the payout ledger service consumes this
		// binding itself.
		log.Printf("[notify] payout accrued: %s", string(d.Body))
		return nil

	default:
		// unknown key, drop
		return nil
	}
}

func humanTimeRange(startUnix, endUnix int64) string {
	st := time.Unix(startUnix, 0).UTC()
	et := time.Unix(endUnix, 0).UTC()
	return fmt.Sprintf("%s - %s", st.Format("2006-01-02 15:04"), et.Format("15:04"))
}
