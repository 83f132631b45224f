package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/model"
)

var (
	// ErrAlreadyCanceled is returned when the provider refuses a change because the
	// subscription is already fully canceled.
	ErrAlreadyCanceled = errors.New("billing: subscription already canceled")
	ErrUnknownStatus   = errors.New("billing: unknown subscription status")
	// ErrMalformedEvent marks a correctly signed webhook whose payload cannot be decoded.
	ErrMalformedEvent = errors.New("billing: malformed webhook event")
)

// Status is the provider-side subscription status.
type Status string

const (
	StatusActive            Status = "active"
	StatusTrialing          Status = "trialing"
	StatusPastDue           Status = "past_due"
	StatusCanceled          Status = "canceled"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusUnpaid            Status = "unpaid"
	StatusPaused            Status = "paused"
)

func (s Status) String() string { return string(s) }

// ParseStatus maps a raw provider string to Status; unknown values wrap ErrUnknownStatus.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusActive, StatusTrialing, StatusPastDue, StatusCanceled,
		StatusIncomplete, StatusIncompleteExpired, StatusUnpaid, StatusPaused:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

// Local maps the provider status onto the local closed set.
func (s Status) Local() (model.SubscriptionStatus, error) {
	switch s {
	case StatusActive:
		return model.SubscriptionActive, nil
	case StatusTrialing:
		return model.SubscriptionTrialing, nil
	case StatusPastDue, StatusIncomplete:
		return model.SubscriptionPastDue, nil
	case StatusCanceled, StatusIncompleteExpired:
		return model.SubscriptionCanceled, nil
	case StatusUnpaid, StatusPaused:
		return model.SubscriptionSuspended, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, string(s))
	}
}

// Cancelable reports whether a cancel-at-period-end request makes sense.
func (s Status) Cancelable() bool {
	return s == StatusActive || s == StatusTrialing
}

// FullyCanceled is the set an idempotent cancel treats as already done.
func (s Status) FullyCanceled() bool {
	return s == StatusCanceled || s == StatusIncompleteExpired
}

// Unrecoverable is the set from which reactivation is impossible.
func (s Status) Unrecoverable() bool {
	switch s {
	case StatusCanceled, StatusIncomplete, StatusIncompleteExpired, StatusUnpaid:
		return true
	}
	return false
}

// Subscription is the authoritative provider view of a subscription.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            Status
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time
	CancelAt          *time.Time
}

// Ended reports whether the provider considers the subscription over at now:
// either canceled, or a scheduled cancellation time that has already passed.
func (s Subscription) Ended(now time.Time) bool {
	if s.Status == StatusCanceled {
		return true
	}
	return s.CancelAt != nil && !s.CancelAt.After(now)
}

// Provider is the billing system of record.
type Provider interface {
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (*Subscription, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// EventKind classifies a verified webhook event.
type EventKind string

const (
	EventSubscriptionUpdated EventKind = "customer.subscription.updated"
	EventSubscriptionDeleted EventKind = "customer.subscription.deleted"
)

// Event is a verified provider webhook event carrying a subscription snapshot.
// Subscription is nil for kinds the service ignores.
type Event struct {
	ID           string
	Kind         EventKind
	Subscription *Subscription
}

// WebhookVerifier checks the signature of an incoming webhook and decodes it.
type WebhookVerifier interface {
	ParseEvent(payload []byte, signature string) (*Event, error)
}
