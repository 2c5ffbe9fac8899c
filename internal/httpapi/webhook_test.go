package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/you/meeting-payments/internal/processor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingApplier struct {
	events []processor.Event
	err    error
}

func (a *recordingApplier) Apply(_ context.Context, evt processor.Event) error {
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, evt)
	return nil
}

const webhookSecret = "whsec_test"

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(h *WebhookHandler, body []byte, sig string) *httptest.ResponseRecorder {
	r := gin.New()
	r.POST("/webhooks/payment", h.Handle)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	if sig != "" {
		req.Header.Set(SignatureHeader, sig)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var completeSuccessful = []byte(`{
	"id": "evnt_1",
	"key": "charge.complete",
	"data": {
		"id": "chrg_1",
		"status": "successful",
		"amount": 5000,
		"currency": "EUR",
		"source": {"type": "promptpay"},
		"metadata": {
			"expert_id": "expert-1",
			"guest_email": "guest@example.com",
			"start_iso": "2025-02-20T10:00:00Z",
			"end_iso": "2025-02-20T11:00:00Z"
		}
	}
}`)

func TestWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()

	app := &recordingApplier{}
	h := NewWebhookHandler(webhookSecret, app, nil, false)

	w := postWebhook(h, completeSuccessful, "deadbeef")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	w = postWebhook(h, completeSuccessful, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing signature: status = %d, want 401", w.Code)
	}
	if len(app.events) != 0 {
		t.Fatal("unsigned payload reached the processor")
	}
}

func TestWebhookTranslatesAndApplies(t *testing.T) {
	t.Parallel()

	app := &recordingApplier{}
	h := NewWebhookHandler(webhookSecret, app, nil, false)

	w := postWebhook(h, completeSuccessful, sign(completeSuccessful))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(app.events) != 1 {
		t.Fatalf("applied %d events, want 1", len(app.events))
	}
	evt := app.events[0]
	if evt.Type != processor.EventSucceeded {
		t.Fatalf("type = %s", evt.Type)
	}
	if evt.SessionRef != "chrg_1" || evt.ID != "evnt_1" {
		t.Fatalf("refs = %s/%s", evt.SessionRef, evt.ID)
	}
	if evt.Method != "promptpay" {
		t.Fatalf("method = %s", evt.Method)
	}
	if evt.ExpertID != "expert-1" || evt.StartTime.IsZero() {
		t.Fatalf("metadata not carried over: %+v", evt)
	}
}

func TestWebhookAcksIrrelevantEventKeys(t *testing.T) {
	t.Parallel()

	app := &recordingApplier{}
	h := NewWebhookHandler(webhookSecret, app, nil, false)

	body := []byte(`{"id":"evnt_2","key":"customer.update","data":{}}`)
	w := postWebhook(h, body, sign(body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 ack", w.Code)
	}
	if len(app.events) != 0 {
		t.Fatal("irrelevant event reached the processor")
	}
}

func TestWebhookSurfacesProcessingFailureForRedelivery(t *testing.T) {
	t.Parallel()

	app := &recordingApplier{err: errors.New("db down")}
	h := NewWebhookHandler(webhookSecret, app, nil, false)

	w := postWebhook(h, completeSuccessful, sign(completeSuccessful))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 so the processor retries", w.Code)
	}
}

func TestWebhookFailedCharge(t *testing.T) {
	t.Parallel()

	app := &recordingApplier{}
	h := NewWebhookHandler(webhookSecret, app, nil, false)

	body := []byte(`{"id":"evnt_3","key":"charge.complete","data":{"id":"chrg_2","status":"failed","failure_code":"insufficient_fund","source":{"type":"promptpay"},"metadata":{}}}`)
	w := postWebhook(h, body, sign(body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(app.events) != 1 || app.events[0].Type != processor.EventFailed {
		t.Fatalf("events = %+v", app.events)
	}
	if app.events[0].FailureCode != "insufficient_fund" {
		t.Fatalf("failure code = %q", app.events[0].FailureCode)
	}
}
