package model

import "time"

type NotificationType string

const (
	NotificationTrialExpired            NotificationType = "trial_expired"
	NotificationTrialExpiringSoon       NotificationType = "trial_expiring_soon"
	NotificationSubscriptionCanceled    NotificationType = "subscription_canceled"
	NotificationSubscriptionReactivated NotificationType = "subscription_reactivated"
)

func (t NotificationType) String() string { return string(t) }

// Notification is the envelope published to Kafka and delivered by the notifications worker.
type Notification struct {
	ID        string           `json:"id"` // ULID
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
