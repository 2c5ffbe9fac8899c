package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// MethodCard is the only immediate method; every source-backed method
// (promptpay, internet banking, bill payment vouchers) clears asynchronously.
const MethodCard = "card"

func IsDelayed(method string) bool {
	return method != "" && method != MethodCard
}

type Client struct {
	omc       *omise.Client
	secretKey string // for REST calls the SDK does not cover
	returnURI string
}

func New(pub, sec, returnURI string) (*Client, error) {
	omc, err := omise.NewClient(pub, sec)
	if err != nil {
		return nil, err
	}
	omc.SetDebug(false)
	return &Client{omc: omc, secretKey: sec, returnURI: returnURI}, nil
}

type CheckoutInput struct {
	Amount   int64
	Currency string
	Method   string // "card" or an omise source type
	CardTok  string // required for card
	Metadata map[string]any
}

// Session is the engine's view of a created checkout.
type Session struct {
	Ref          string // charge id, the correlation id everywhere else
	AuthorizeURI string
	Status       string // pending | successful | failed
	FailureCode  string
}

// CreateCheckout opens a charge with the processor. Card charges may settle
// synchronously; source charges come back pending and resolve via webhook.
func (c *Client) CreateCheckout(ctx context.Context, in CheckoutInput) (*Session, error) {
	if in.Amount <= 0 || in.Currency == "" {
		return nil, errors.New("invalid amount or currency")
	}

	req := &operations.CreateCharge{
		Amount:   in.Amount,
		Currency: in.Currency,
		Metadata: in.Metadata,
	}
	switch {
	case in.Method == MethodCard:
		if in.CardTok == "" {
			return nil, errors.New("card token required")
		}
		req.Card = in.CardTok
	default:
		src, err := c.createSource(ctx, in.Method, in.Amount, in.Currency)
		if err != nil {
			return nil, fmt.Errorf("create source: %w", err)
		}
		req.Source = src.ID
		req.ReturnURI = c.returnURI
	}

	ch := &omise.Charge{}
	if err := c.omc.Do(ch, req); err != nil {
		return nil, fmt.Errorf("create charge: %w", err)
	}

	s := &Session{Ref: ch.ID, AuthorizeURI: ch.AuthorizeURI, Status: string(ch.Status)}
	if ch.FailureCode != nil {
		s.FailureCode = *ch.FailureCode
	}
	return s, nil
}

func (c *Client) createSource(ctx context.Context, sourceType string, amount int64, currency string) (*omise.Source, error) {
	// promptpay needs no return_uri, the SDK covers it directly
	if strings.EqualFold(sourceType, "promptpay") {
		src := &omise.Source{}
		err := c.omc.Do(src, &operations.CreateSource{
			Type:     sourceType,
			Amount:   amount,
			Currency: currency,
		})
		return src, err
	}
	return c.createSourceViaREST(ctx, sourceType, amount, currency)
}

// ExpireSession cancels a checkout nobody should pay into anymore, e.g. when
// its reservation lost the slot race.
func (c *Client) ExpireSession(ctx context.Context, chargeID string) error {
	body, status, err := c.rest(ctx, http.MethodPost,
		"https://api.omise.co/charges/"+chargeID+"/expire", nil)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("expire charge %s: %s (%d)", chargeID, string(body), status)
	}
	return nil
}

// Refund returns the processor refund id.
func (c *Client) Refund(ctx context.Context, chargeID string, amount int64) (string, error) {
	ref := &omise.Refund{}
	err := c.omc.Do(ref, &operations.CreateRefund{ChargeID: chargeID, Amount: amount})
	if err != nil {
		return "", fmt.Errorf("create refund: %w", err)
	}
	return ref.ID, nil
}

// RetrieveEvent re-fetches an event from the processor to confirm a webhook
// payload really originated there.
func (c *Client) RetrieveEvent(ctx context.Context, eventID string) (*omise.Event, error) {
	ev := &omise.Event{}
	if err := c.omc.Do(ev, &operations.RetrieveEvent{EventID: eventID}); err != nil {
		return nil, err
	}
	return ev, nil
}

func (c *Client) createSourceViaREST(ctx context.Context, sourceType string, amount int64, currency string) (*omise.Source, error) {
	form := url.Values{}
	form.Set("type", sourceType)
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", currency)
	if c.returnURI != "" {
		form.Set("return_uri", c.returnURI)
	}
	body, status, err := c.rest(ctx, http.MethodPost, "https://api.omise.co/sources", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("create source failed: %s (%d)", string(body), status)
	}
	var src omise.Source
	if err := json.Unmarshal(body, &src); err != nil {
		return nil, fmt.Errorf("parse source json: %w", err)
	}
	return &src, nil
}

func (c *Client) rest(ctx context.Context, method, url string, payload io.Reader) ([]byte, int, error) {
	if c.secretKey == "" {
		return nil, 0, errors.New("missing secret key for REST call")
	}
	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.SetBasicAuth(c.secretKey, "")

	httpClient := &http.Client{Timeout: 15 * time.Second}
	res, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	return body, res.StatusCode, nil
}
