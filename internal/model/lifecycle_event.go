package model

import "time"

// LifecycleEvent records one subscription transition in ClickHouse.
type LifecycleEvent struct {
	ID             string    `db:"id"              json:"id"`
	SubscriptionID int64     `db:"subscription_id" json:"subscriptionId"`
	UserID         string    `db:"user_id"         json:"userId"`
	Job            string    `db:"job"             json:"job"` // sync|trial|reminder|cancel|reactivate|webhook
	FromStatus     string    `db:"from_status"     json:"fromStatus"`
	ToStatus       string    `db:"to_status"       json:"toStatus"`
	PausedListings int64     `db:"paused_listings" json:"pausedListings"`
	CreatedAt      time.Time `db:"created_at"      json:"createdAt"`
}
