// Package billing talks to Stripe for Pro checkout and webhook verification.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Checkout is a created Stripe Checkout session.
type Checkout struct {
	SessionID string
	URL       string
}

// Gateway is the subset of Stripe the subscription service needs.
type Gateway interface {
	CreateCheckout(ctx context.Context, userID int64, customerID string) (*Checkout, error)
	ParseWebhook(payload []byte, signature string) (stripe.Event, error)
}

type StripeOptions struct {
	SecretKey     string
	WebhookSecret string
	ProPriceID    string
	SuccessURL    string
	CancelURL     string
}

type StripeGateway struct {
	opts StripeOptions
}

func NewStripeGateway(opts StripeOptions) *StripeGateway {
	stripe.Key = opts.SecretKey
	return &StripeGateway{opts: opts}
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, userID int64, customerID string) (*Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(strconv.FormatInt(userID, 10)),
		SuccessURL:        stripe.String(g.opts.SuccessURL),
		CancelURL:         stripe.String(g.opts.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(g.opts.ProPriceID), Quantity: stripe.Int64(1)},
		},
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &Checkout{SessionID: sess.ID, URL: sess.URL}, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.opts.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return event, nil
}
