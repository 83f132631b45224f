package model

import "time"

type ListingStatus string

const (
	ListingActive ListingStatus = "activa"
	ListingPaused ListingStatus = "pausada"
	ListingSold   ListingStatus = "vendida"
	ListingDraft  ListingStatus = "borrador"
)

func (s ListingStatus) String() string { return string(s) }

// Listing is the property row owned by an agent or agency.
type Listing struct {
	ID        int64         `db:"id"`
	OwnerID   string        `db:"owner_id"`
	Title     string        `db:"title"`
	Status    ListingStatus `db:"status"`
	UpdatedAt time.Time     `db:"updated_at"`
}
