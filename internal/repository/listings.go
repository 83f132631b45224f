package repository

import (
	"context"

	"github.com/jmehdipour/realestate-billing/internal/model"
	"github.com/jmoiron/sqlx"
)

// ListingsRepository is the slice of the properties table the lifecycle needs.
type ListingsRepository interface {
	ActiveIDsByOwner(ctx context.Context, tx *sqlx.Tx, ownerID string) ([]int64, error)
	BulkSetStatus(ctx context.Context, tx *sqlx.Tx, ids []int64, status model.ListingStatus) (int64, error)
	CountActiveByOwner(ctx context.Context, ownerID string) (int, error)
}

type ListingsRepositoryImpl struct {
	db *sqlx.DB
}

func NewListingsRepository(db *sqlx.DB) *ListingsRepositoryImpl {
	return &ListingsRepositoryImpl{db: db}
}

var _ ListingsRepository = (*ListingsRepositoryImpl)(nil)

func (r *ListingsRepositoryImpl) ActiveIDsByOwner(ctx context.Context, tx *sqlx.Tx, ownerID string) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, ext(r.db, tx), &ids, `
		SELECT id FROM properties WHERE owner_id = ? AND status = ? ORDER BY id
	`, ownerID, model.ListingActive.String())
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// BulkSetStatus updates status for many listings using a single statement.
func (r *ListingsRepositoryImpl) BulkSetStatus(ctx context.Context, tx *sqlx.Tx, ids []int64, status model.ListingStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const base = `UPDATE properties SET status = ?, updated_at = NOW() WHERE id IN (?)`
	query, args, err := sqlx.In(base, status.String(), ids)
	if err != nil {
		return 0, err
	}
	query = r.db.Rebind(query)

	var affected int64
	err = withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

func (r *ListingsRepositoryImpl) CountActiveByOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM properties WHERE owner_id = ? AND status = ?
	`, ownerID, model.ListingActive.String())
	return n, err
}
