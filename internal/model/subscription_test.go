package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubscriptionStatus(t *testing.T) {
	s, err := ParseSubscriptionStatus(" Trialing")
	require.NoError(t, err)
	assert.Equal(t, SubscriptionTrialing, s)

	_, err = ParseSubscriptionStatus("incomplete_expired")
	assert.Error(t, err)
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, SubscriptionCanceled.Terminal())
	assert.True(t, SubscriptionExpired.Terminal())
	for _, s := range []SubscriptionStatus{SubscriptionActive, SubscriptionTrialing, SubscriptionPastDue, SubscriptionSuspended} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestProviderIDs(t *testing.T) {
	var sub Subscription
	assert.Empty(t, sub.ProviderID())
	assert.Empty(t, sub.CustomerID())

	id, cus := " sub_1 ", "cus_1"
	sub.StripeSubscriptionID = &id
	sub.StripeCustomerID = &cus
	assert.Equal(t, "sub_1", sub.ProviderID())
	assert.Equal(t, "cus_1", sub.CustomerID())
}
