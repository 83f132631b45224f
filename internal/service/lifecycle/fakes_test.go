package lifecycle

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
	"go.uber.org/zap"
)

var errNoSuchSubscription = errors.New("no such subscription")

type fakeSubs struct {
	mu        sync.Mutex
	rows      map[int64]*model.Subscription
	updateErr error
	updates   int
}

func newFakeSubs(rows ...model.Subscription) *fakeSubs {
	f := &fakeSubs{rows: make(map[int64]*model.Subscription)}
	for i := range rows {
		r := rows[i]
		if r.Version == 0 {
			r.Version = 1
		}
		f.rows[r.ID] = &r
	}
	return f
}

func (f *fakeSubs) get(id int64) model.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[id]
}

func (f *fakeSubs) ListByStatus(_ context.Context, status model.SubscriptionStatus) ([]model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Subscription
	for _, r := range f.rows {
		if r.Status == status {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeSubs) ListTrials(context.Context, string, time.Time, time.Time) ([]model.Subscription, error) {
	return nil, nil
}

func (f *fakeSubs) FindByUser(_ context.Context, userID string) ([]model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Subscription
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeSubs) GetByProviderID(_ context.Context, providerID string) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ProviderID() == providerID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeSubs) Create(_ context.Context, _ *sqlx.Tx, sub *model.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub.ID = int64(len(f.rows) + 1)
	sub.Version = 1
	cp := *sub
	f.rows[sub.ID] = &cp
	return nil
}

func (f *fakeSubs) Update(_ context.Context, _ *sqlx.Tx, sub *model.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	cur, ok := f.rows[sub.ID]
	if !ok || cur.Version != sub.Version {
		return repository.ErrStaleSubscription
	}
	sub.Version++
	cp := *sub
	f.rows[sub.ID] = &cp
	f.updates++
	return nil
}

type fakeListings struct {
	mu       sync.Mutex
	rows     map[int64]*model.Listing
	pauseErr error
}

func newFakeListings(rows ...model.Listing) *fakeListings {
	f := &fakeListings{rows: make(map[int64]*model.Listing)}
	for i := range rows {
		r := rows[i]
		f.rows[r.ID] = &r
	}
	return f
}

func (f *fakeListings) status(id int64) model.ListingStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].Status
}

func (f *fakeListings) ActiveIDsByOwner(_ context.Context, _ *sqlx.Tx, ownerID string) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for _, r := range f.rows {
		if r.OwnerID == ownerID && r.Status == model.ListingActive {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

func (f *fakeListings) BulkSetStatus(_ context.Context, _ *sqlx.Tx, ids []int64, status model.ListingStatus) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pauseErr != nil {
		return 0, f.pauseErr
	}
	for _, id := range ids {
		f.rows[id].Status = status
	}
	return int64(len(ids)), nil
}

func (f *fakeListings) CountActiveByOwner(ctx context.Context, ownerID string) (int, error) {
	ids, _ := f.ActiveIDsByOwner(ctx, nil, ownerID)
	return len(ids), nil
}

type fakeTx struct{}

func (fakeTx) WithinTx(_ context.Context, fn func(tx *sqlx.Tx) error) error { return fn(nil) }

type fakeProvider struct {
	mu          sync.Mutex
	subs        map[string]*billing.Subscription
	getErr      error
	setErr      error
	setCalls    int
	portalCalls int
}

func newFakeProvider(subs ...billing.Subscription) *fakeProvider {
	p := &fakeProvider{subs: make(map[string]*billing.Subscription)}
	for i := range subs {
		s := subs[i]
		p.subs[s.ID] = &s
	}
	return p
}

func (p *fakeProvider) GetSubscription(_ context.Context, id string) (*billing.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	s, ok := p.subs[id]
	if !ok {
		return nil, errNoSuchSubscription
	}
	cp := *s
	return &cp, nil
}

func (p *fakeProvider) SetCancelAtPeriodEnd(_ context.Context, id string, cancel bool) (*billing.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setCalls++
	if p.setErr != nil {
		return nil, p.setErr
	}
	s := p.subs[id]
	s.CancelAtPeriodEnd = cancel
	cp := *s
	return &cp, nil
}

func (p *fakeProvider) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.portalCalls++
	return "https://billing.example.com/session/" + customerID + "?return=" + returnURL, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, msg model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []model.LifecycleEvent
}

func (e *fakeEvents) Insert(_ context.Context, events ...model.LifecycleEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, events...)
	return nil
}

func (e *fakeEvents) ListByUser(context.Context, string, string, int, int) ([]model.LifecycleEvent, error) {
	return e.events, nil
}

type fixture struct {
	subs     *fakeSubs
	listings *fakeListings
	provider *fakeProvider
	notifier *fakeNotifier
	events   *fakeEvents
	svc      *Service
}

func newFixture(subs *fakeSubs, listings *fakeListings, provider *fakeProvider) *fixture {
	log := zap.NewNop()
	events := &fakeEvents{}
	journal := NewJournal(events, log)
	cascade := NewCascade(fakeTx{}, subs, listings)
	rec := NewReconciler(subs, cascade, journal, log)
	notifier := &fakeNotifier{}
	svc := NewService(subs, provider, rec, cascade, notifier, journal,
		Options{PortalReturnURL: "https://app.example.com/suscripcion", CallTimeout: time.Second}, log)
	return &fixture{subs: subs, listings: listings, provider: provider, notifier: notifier, events: events, svc: svc}
}

func strPtr(s string) *string { return &s }
