package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/you/meeting-payments/internal/conflict"
	"github.com/you/meeting-payments/internal/domain"
	"github.com/you/meeting-payments/internal/gateway"
	"github.com/you/meeting-payments/internal/idempotency"
	"github.com/you/meeting-payments/internal/processor"
	"github.com/you/meeting-payments/internal/repository"
)

// Checkout is the slice of the payment gateway the booking endpoint needs.
type Checkout interface {
	CreateCheckout(ctx context.Context, in gateway.CheckoutInput) (*gateway.Session, error)
	ExpireSession(ctx context.Context, sessionRef string) error
}

// IdemStore dedupes booking-creation requests across engine instances.
type IdemStore interface {
	RegisterOrFetch(ctx context.Context, key string) (*idempotency.Result, bool, error)
	Complete(ctx context.Context, key string, r idempotency.Result) error
	Release(ctx context.Context, key string) error
}

type Applier interface {
	Apply(ctx context.Context, evt processor.Event) error
}

type BookingHandler struct {
	idem IdemStore
	gw   Checkout
	res  processor.Reservations
	det  processor.Detector
	proc Applier

	reservationTTL time.Duration
}

func NewBookingHandler(idem IdemStore, gw Checkout, res processor.Reservations, det processor.Detector, proc Applier, reservationTTL time.Duration) *BookingHandler {
	return &BookingHandler{idem: idem, gw: gw, res: res, det: det, proc: proc, reservationTTL: reservationTTL}
}

type createBookingInput struct {
	ExpertID   string `json:"expert_id" binding:"required"`
	StartISO   string `json:"start_iso" binding:"required"` // RFC3339
	EndISO     string `json:"end_iso"   binding:"required"`
	GuestEmail string `json:"guest_email" binding:"required,email"`
	GuestName  string `json:"guest_name"`
	Method     string `json:"method" binding:"required"` // "card" or a delayed source type
	CardToken  string `json:"card_token"`
	Amount     int64  `json:"amount" binding:"required,gt=0"` // minor units
	Currency   string `json:"currency" binding:"required"`
}

// POST /v1/bookings
func (h *BookingHandler) Create(c *gin.Context) {
	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing Idempotency-Key header"})
		return
	}
	var in createBookingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prior, claimed, err := h.idem.RegisterOrFetch(c, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "try again later"})
		return
	}
	if !claimed {
		h.replay(c, prior)
		return
	}

	start, end, err := parseRange(in.StartISO, in.EndISO)
	if err != nil {
		_ = h.idem.Release(c, key)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.create(c, key, in, start, end)
}

func parseRange(startISO, endISO string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, startISO)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(time.RFC3339, endISO)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, errors.New("end must be after start")
	}
	return start.UTC(), end.UTC(), nil
}

func (h *BookingHandler) create(c *gin.Context, key string, in createBookingInput, start, end time.Time) {
	now := time.Now().UTC()

	// Cheap pre-check so obviously unbookable slots never open a session.
	// The reservation insert remains the real guard.
	if cr, err := h.det.Detect(c, in.ExpertID, start, end, now); err == nil && cr.Type != conflict.None {
		h.conflictResponse(c, key, cr.Reason)
		return
	}

	sess, err := h.gw.CreateCheckout(c, gateway.CheckoutInput{
		Amount:   in.Amount,
		Currency: in.Currency,
		Method:   in.Method,
		CardTok:  in.CardToken,
		Metadata: map[string]any{
			"expert_id":   in.ExpertID,
			"guest_email": in.GuestEmail,
			"guest_name":  in.GuestName,
			"start_iso":   start.Format(time.RFC3339),
			"end_iso":     end.Format(time.RFC3339),
			"method":      in.Method,
		},
	})
	if err != nil {
		log.Printf("[bookings] create checkout: %v", err)
		_ = h.idem.Release(c, key)
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment processor unavailable, try again later"})
		return
	}

	if gateway.IsDelayed(in.Method) {
		h.createDelayed(c, key, in, start, end, now, sess)
		return
	}
	h.createImmediate(c, key, in, start, end, sess)
}

func (h *BookingHandler) createDelayed(c *gin.Context, key string, in createBookingInput, start, end, now time.Time, sess *gateway.Session) {
	res := &domain.Reservation{
		ExpertID:   in.ExpertID,
		GuestEmail: in.GuestEmail,
		GuestName:  in.GuestName,
		StartTime:  start,
		EndTime:    end,
		ExpiresAt:  now.Add(h.reservationTTL),
		SessionRef: sess.Ref,
	}
	if err := h.res.Reserve(c, res); err != nil {
		// Nobody may pay into a dead slot: the session we just opened has to
		// go, whatever went wrong here.
		if expErr := h.gw.ExpireSession(c, sess.Ref); expErr != nil {
			log.Printf("[bookings] expire session %s: %v", sess.Ref, expErr)
		}
		if errors.Is(err, repository.ErrSlotTaken) {
			h.conflictResponse(c, key, "slot unavailable")
			return
		}
		log.Printf("[bookings] reserve: %v", err)
		_ = h.idem.Release(c, key)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "try again later"})
		return
	}

	out := idempotency.Result{
		State:        idempotency.StateDone,
		SessionRef:   sess.Ref,
		AuthorizeURI: sess.AuthorizeURI,
	}
	if err := h.idem.Complete(c, key, out); err != nil {
		log.Printf("[bookings] idempotency complete: %v", err)
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_ref":   sess.Ref,
		"authorize_uri": sess.AuthorizeURI,
		"expires_at":    res.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *BookingHandler) createImmediate(c *gin.Context, key string, in createBookingInput, start, end time.Time, sess *gateway.Session) {
	switch sess.Status {
	case "successful":
		// Card settled synchronously; drive the state machine now instead of
		// waiting for the webhook, which will later no-op on the same session.
		evt := processor.Event{
			ID:         sess.Ref + ":succeeded",
			Type:       processor.EventSucceeded,
			SessionRef: sess.Ref,
			ExpertID:   in.ExpertID,
			GuestEmail: in.GuestEmail,
			GuestName:  in.GuestName,
			StartTime:  start,
			EndTime:    end,
			Amount:     in.Amount,
			Currency:   in.Currency,
			Method:     in.Method,
		}
		if err := h.proc.Apply(c, evt); err != nil {
			log.Printf("[bookings] apply sync success: %v", err)
			_ = h.idem.Release(c, key)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "try again later"})
			return
		}
		out := idempotency.Result{State: idempotency.StateDone, SessionRef: sess.Ref}
		if err := h.idem.Complete(c, key, out); err != nil {
			log.Printf("[bookings] idempotency complete: %v", err)
		}
		c.JSON(http.StatusCreated, gin.H{"session_ref": sess.Ref, "status": "confirmed"})
	case "failed":
		out := idempotency.Result{State: idempotency.StateDone, SessionRef: sess.Ref, Reason: sess.FailureCode}
		_ = h.idem.Complete(c, key, out)
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "payment failed", "failure_code": sess.FailureCode})
	default:
		// pending, e.g. 3-D Secure: the guest finishes at the authorize URI.
		out := idempotency.Result{State: idempotency.StateDone, SessionRef: sess.Ref, AuthorizeURI: sess.AuthorizeURI}
		if err := h.idem.Complete(c, key, out); err != nil {
			log.Printf("[bookings] idempotency complete: %v", err)
		}
		c.JSON(http.StatusCreated, gin.H{"session_ref": sess.Ref, "authorize_uri": sess.AuthorizeURI})
	}
}

func (h *BookingHandler) conflictResponse(c *gin.Context, key, reason string) {
	out := idempotency.Result{State: idempotency.StateConflict, Reason: reason}
	if err := h.idem.Complete(c, key, out); err != nil {
		log.Printf("[bookings] idempotency complete: %v", err)
	}
	c.JSON(http.StatusConflict, gin.H{"error": "slot_unavailable", "reason": reason})
}

// replay hands a duplicate submission the winner's original outcome.
func (h *BookingHandler) replay(c *gin.Context, prior *idempotency.Result) {
	if prior == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "in_flight", "retry_after_ms": 500})
		return
	}
	switch prior.State {
	case idempotency.StateConflict:
		c.JSON(http.StatusConflict, gin.H{"error": "slot_unavailable", "reason": prior.Reason})
	case idempotency.StateDone:
		c.JSON(http.StatusOK, gin.H{
			"session_ref":   prior.SessionRef,
			"authorize_uri": prior.AuthorizeURI,
			"booking_id":    prior.BookingID,
		})
	default:
		c.JSON(http.StatusConflict, gin.H{"error": "in_flight", "retry_after_ms": 500})
	}
}
