package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/omise/omise-go"

	"github.com/you/meeting-payments/internal/processor"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Payment-Signature"

// EventVerifier re-fetches an event from the processor as a second
// authenticity check on top of the signature.
type EventVerifier interface {
	RetrieveEvent(ctx context.Context, eventID string) (*omise.Event, error)
}

type WebhookHandler struct {
	secret         []byte
	proc           Applier
	verifier       EventVerifier
	verifyUpstream bool
}

func NewWebhookHandler(secret string, proc Applier, verifier EventVerifier, verifyUpstream bool) *WebhookHandler {
	return &WebhookHandler{secret: []byte(secret), proc: proc, verifier: verifier, verifyUpstream: verifyUpstream}
}

type wireEvent struct {
	ID   string          `json:"id"`
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

type wireCharge struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	Amount       int64          `json:"amount"`
	Currency     string         `json:"currency"`
	AuthorizeURI string         `json:"authorize_uri"`
	FailureCode  *string        `json:"failure_code"`
	Transaction  string         `json:"transaction"`
	Source       *struct {
		Type         string `json:"type"`
		Instructions string `json:"scannable_code"`
	} `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

// POST /webhooks/payment
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	if !h.validSignature(c.GetHeader(SignatureHeader), body) {
		log.Printf("[webhook] signature mismatch, possible tampering (remote=%s)", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var inc wireEvent
	if err := json.Unmarshal(body, &inc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
		return
	}

	if h.verifyUpstream && h.verifier != nil {
		ev, err := h.verifier.RetrieveEvent(c, inc.ID)
		if err != nil || ev.Key != inc.Key {
			log.Printf("[webhook] upstream verify failed for %s: %v", inc.ID, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unverified event"})
			return
		}
	}

	evt, ok, err := translate(inc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		// Event key outside our lifecycle; ack so the processor stops retrying.
		c.Status(http.StatusOK)
		return
	}

	if err := h.proc.Apply(c, evt); err != nil {
		// Non-200 makes the processor redeliver; every handler is idempotent.
		log.Printf("[webhook] apply %s (%s): %v", evt.ID, evt.Type, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}
	c.Status(http.StatusOK)
}

func (h *WebhookHandler) validSignature(header string, body []byte) bool {
	if header == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(header), []byte(want))
}

// translate maps the processor's wire event onto the engine's closed
// lifecycle set. ok=false means the key is none of our business.
func translate(inc wireEvent) (processor.Event, bool, error) {
	var ch wireCharge
	if err := json.Unmarshal(inc.Data, &ch); err != nil {
		return processor.Event{}, false, err
	}

	var t processor.EventType
	switch inc.Key {
	case "charge.create":
		t = processor.EventCreated
	case "charge.pending":
		t = processor.EventRequiresAction
	case "charge.complete":
		if ch.Status == "successful" {
			t = processor.EventSucceeded
		} else {
			t = processor.EventFailed
		}
	default:
		return processor.Event{}, false, nil
	}

	evt := processor.Event{
		ID:         inc.ID,
		Type:       t,
		SessionRef: ch.ID,
		PaymentRef: ch.Transaction,
		Amount:     ch.Amount,
		Currency:   ch.Currency,
		OccurredAt: time.Now().UTC(),
	}
	if ch.FailureCode != nil {
		evt.FailureCode = *ch.FailureCode
	}
	if ch.Source != nil {
		evt.Method = ch.Source.Type
		evt.Instructions = ch.Source.Instructions
	} else {
		evt.Method = "card"
	}
	if evt.Instructions == "" {
		evt.Instructions = ch.AuthorizeURI
	}

	evt.ExpertID = metaStr(ch.Metadata, "expert_id")
	evt.GuestEmail = metaStr(ch.Metadata, "guest_email")
	evt.GuestName = metaStr(ch.Metadata, "guest_name")
	if ts, err := time.Parse(time.RFC3339, metaStr(ch.Metadata, "start_iso")); err == nil {
		evt.StartTime = ts.UTC()
	}
	if ts, err := time.Parse(time.RFC3339, metaStr(ch.Metadata, "end_iso")); err == nil {
		evt.EndTime = ts.UTC()
	}
	return evt, true, nil
}

func metaStr(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}
