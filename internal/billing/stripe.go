package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/metrics"
	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider implements Provider and WebhookVerifier on top of the Stripe API.
type StripeProvider struct {
	webhookSecret string
}

// NewStripeProvider sets the process-wide Stripe key and returns the provider.
func NewStripeProvider(apiKey, webhookSecret string) *StripeProvider {
	stripe.Key = apiKey
	return &StripeProvider{webhookSecret: webhookSecret}
}

var (
	_ Provider        = (*StripeProvider)(nil)
	_ WebhookVerifier = (*StripeProvider)(nil)
)

func (p *StripeProvider) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	s, err := subscription.Get(id, params)
	observe("get", err)
	if err != nil {
		return nil, fmt.Errorf("billing: retrieve subscription %s: %w", id, classify(err))
	}
	return fromStripe(s)
}

func (p *StripeProvider) SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	params.Context = ctx

	s, err := subscription.Update(id, params)
	observe("update", err)
	if err != nil {
		return nil, fmt.Errorf("billing: update subscription %s: %w", id, classify(err))
	}
	return fromStripe(s)
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := portalsession.New(params)
	observe("portal", err)
	if err != nil {
		return "", fmt.Errorf("billing: create portal session: %w", err)
	}
	return sess.URL, nil
}

// ParseEvent verifies the Stripe-Signature header and decodes subscription events.
func (p *StripeProvider) ParseEvent(payload []byte, signature string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("billing: webhook signature verification failed: %w", err)
	}

	out := &Event{ID: ev.ID, Kind: EventKind(ev.Type)}
	switch out.Kind {
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var s stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %s %s: %w", ErrMalformedEvent, ev.Type, ev.ID, err)
		}
		sub, err := fromStripe(&s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %w", ErrMalformedEvent, ev.Type, ev.ID, err)
		}
		out.Subscription = sub
	}
	return out, nil
}

func fromStripe(s *stripe.Subscription) (*Subscription, error) {
	st, err := ParseStatus(string(s.Status))
	if err != nil {
		return nil, err
	}

	out := &Subscription{
		ID:                s.ID,
		Status:            st,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.CancelAt > 0 {
		t := time.Unix(s.CancelAt, 0).UTC()
		out.CancelAt = &t
	}
	// period boundaries live on the items since API version 2025-03-31
	if s.Items != nil {
		for _, it := range s.Items.Data {
			if it == nil || it.CurrentPeriodEnd <= 0 {
				continue
			}
			end := time.Unix(it.CurrentPeriodEnd, 0).UTC()
			if end.After(out.CurrentPeriodEnd) {
				out.CurrentPeriodEnd = end
			}
		}
	}
	return out, nil
}

// classify maps Stripe's "canceled subscription" rejection onto ErrAlreadyCanceled.
func classify(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return err
	}
	if se.Type == stripe.ErrorTypeInvalidRequest &&
		strings.Contains(strings.ToLower(se.Msg), "canceled subscription") {
		return fmt.Errorf("%w: %s", ErrAlreadyCanceled, se.Msg)
	}
	return err
}

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.BillingCalls.WithLabelValues(op, result).Inc()
}
