package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/billing"
	"github.com/jmehdipour/realestate-billing/internal/model"
	"github.com/jmehdipour/realestate-billing/internal/repository"
	"github.com/jmoiron/sqlx"
)

type memSubs struct {
	mu      sync.Mutex
	rows    map[int64]*model.Subscription
	updates int
}

func newMemSubs(rows ...model.Subscription) *memSubs {
	m := &memSubs{rows: make(map[int64]*model.Subscription)}
	for i := range rows {
		r := rows[i]
		r.Version = 1
		m.rows[r.ID] = &r
	}
	return m
}

func (m *memSubs) get(id int64) model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

func (m *memSubs) snapshot() map[int64]model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]model.Subscription, len(m.rows))
	for id, r := range m.rows {
		cp := *r
		cp.Version = 0
		out[id] = cp
	}
	return out
}

func (m *memSubs) filter(keep func(*model.Subscription) bool) []model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, r := range m.rows {
		if keep(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memSubs) ListByStatus(_ context.Context, status model.SubscriptionStatus) ([]model.Subscription, error) {
	return m.filter(func(r *model.Subscription) bool { return r.Status == status }), nil
}

func (m *memSubs) ListTrials(_ context.Context, planID string, after, before time.Time) ([]model.Subscription, error) {
	return m.filter(func(r *model.Subscription) bool {
		if r.PlanID != planID || r.Status != model.SubscriptionActive || r.CreatedAt.After(before) {
			return false
		}
		return after.IsZero() || !r.CreatedAt.Before(after)
	}), nil
}

func (m *memSubs) FindByUser(_ context.Context, userID string) ([]model.Subscription, error) {
	return m.filter(func(r *model.Subscription) bool { return r.UserID == userID }), nil
}

func (m *memSubs) GetByProviderID(_ context.Context, providerID string) (*model.Subscription, error) {
	rows := m.filter(func(r *model.Subscription) bool { return r.ProviderID() == providerID })
	if len(rows) == 0 {
		return nil, repository.ErrNotFound
	}
	return &rows[0], nil
}

func (m *memSubs) Create(_ context.Context, _ *sqlx.Tx, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.ID = int64(len(m.rows) + 1)
	sub.Version = 1
	cp := *sub
	m.rows[sub.ID] = &cp
	return nil
}

func (m *memSubs) Update(_ context.Context, _ *sqlx.Tx, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[sub.ID]
	if !ok || cur.Version != sub.Version {
		return repository.ErrStaleSubscription
	}
	sub.Version++
	cp := *sub
	m.rows[sub.ID] = &cp
	m.updates++
	return nil
}

type memListings struct {
	mu   sync.Mutex
	rows map[int64]*model.Listing
}

func newMemListings(rows ...model.Listing) *memListings {
	m := &memListings{rows: make(map[int64]*model.Listing)}
	for i := range rows {
		r := rows[i]
		m.rows[r.ID] = &r
	}
	return m
}

func (m *memListings) status(id int64) model.ListingStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Status
}

func (m *memListings) ActiveIDsByOwner(_ context.Context, _ *sqlx.Tx, ownerID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, r := range m.rows {
		if r.OwnerID == ownerID && r.Status == model.ListingActive {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

func (m *memListings) BulkSetStatus(_ context.Context, _ *sqlx.Tx, ids []int64, status model.ListingStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.rows[id].Status = status
	}
	return int64(len(ids)), nil
}

func (m *memListings) CountActiveByOwner(ctx context.Context, ownerID string) (int, error) {
	ids, _ := m.ActiveIDsByOwner(ctx, nil, ownerID)
	return len(ids), nil
}

type inlineTx struct{}

func (inlineTx) WithinTx(_ context.Context, fn func(tx *sqlx.Tx) error) error { return fn(nil) }

type stubProvider struct {
	mu      sync.Mutex
	subs    map[string]billing.Subscription
	errs    map[string]error
	hang    map[string]bool // wait for the caller's deadline
	calls   int
	ctxErrs []error
}

func (p *stubProvider) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	p.mu.Lock()
	p.calls++
	hang := p.hang[id]
	p.mu.Unlock()

	if hang {
		<-ctx.Done()
		p.mu.Lock()
		p.ctxErrs = append(p.ctxErrs, ctx.Err())
		p.mu.Unlock()
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.errs[id]; err != nil {
		return nil, err
	}
	s, ok := p.subs[id]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return &s, nil
}

func (p *stubProvider) SetCancelAtPeriodEnd(context.Context, string, bool) (*billing.Subscription, error) {
	return nil, errors.New("not used by batch jobs")
}

func (p *stubProvider) CreatePortalSession(context.Context, string, string) (string, error) {
	return "", errors.New("not used by batch jobs")
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func strPtr(s string) *string { return &s }
