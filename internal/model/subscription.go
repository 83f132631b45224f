package model

import (
	"fmt"
	"strings"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionTrialing  SubscriptionStatus = "trialing"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCanceled  SubscriptionStatus = "canceled"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionSuspended SubscriptionStatus = "suspended"
)

func (s SubscriptionStatus) String() string { return string(s) }

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionTrialing, SubscriptionPastDue,
		SubscriptionCanceled, SubscriptionExpired, SubscriptionSuspended:
		return true
	}
	return false
}

// Terminal reports whether no further transition is expected without a new checkout.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionCanceled || s == SubscriptionExpired
}

// ParseSubscriptionStatus rejects anything outside the closed set.
func ParseSubscriptionStatus(raw string) (SubscriptionStatus, error) {
	s := SubscriptionStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown subscription status %q", raw)
	}
	return s, nil
}

type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// Subscription is the local mirror of a user's billing relationship.
type Subscription struct {
	ID                   int64              `db:"id"                     json:"id"`
	UserID               string             `db:"user_id"                json:"userId"`
	PlanID               string             `db:"plan_id"                json:"planId"`
	Status               SubscriptionStatus `db:"status"                 json:"status"`
	BillingCycle         BillingCycle       `db:"billing_cycle"          json:"billingCycle"`
	StripeSubscriptionID *string            `db:"stripe_subscription_id" json:"stripeSubscriptionId,omitempty"`
	StripeCustomerID     *string            `db:"stripe_customer_id"     json:"stripeCustomerId,omitempty"`
	CurrentPeriodStart   *time.Time         `db:"current_period_start"   json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd     *time.Time         `db:"current_period_end"     json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd    bool               `db:"cancel_at_period_end"   json:"cancelAtPeriodEnd"`
	FeaturedUsed         int                `db:"featured_used"          json:"featuredUsed"`
	UsageResetAt         *time.Time         `db:"usage_reset_at"         json:"usageResetAt,omitempty"`
	Version              int64              `db:"version"                json:"-"`
	CreatedAt            time.Time          `db:"created_at"             json:"createdAt"`
	UpdatedAt            time.Time          `db:"updated_at"             json:"updatedAt"`
}

// ProviderID returns the external subscription id, "" when the row was never checked out.
func (s Subscription) ProviderID() string {
	if s.StripeSubscriptionID == nil {
		return ""
	}
	return strings.TrimSpace(*s.StripeSubscriptionID)
}

// CustomerID returns the external customer id, "" when unknown.
func (s Subscription) CustomerID() string {
	if s.StripeCustomerID == nil {
		return ""
	}
	return strings.TrimSpace(*s.StripeCustomerID)
}
