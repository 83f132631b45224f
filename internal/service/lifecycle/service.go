package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/billing"
	"github.com/jmehdipour/realestate-billing/internal/model"
	"github.com/jmehdipour/realestate-billing/internal/notify"
	"github.com/jmehdipour/realestate-billing/internal/repository"
	"go.uber.org/zap"
)

type Options struct {
	PortalReturnURL string
	CallTimeout     time.Duration
}

// Service implements the user-triggered subscription actions. Every action
// asks the provider first and mirrors the answer locally.
type Service struct {
	subs       repository.SubscriptionsRepository
	provider   billing.Provider
	reconciler *Reconciler
	cascade    *Cascade
	notifier   notify.Notifier
	journal    *Journal
	opts       Options
	log        *zap.Logger
}

func NewService(
	subs repository.SubscriptionsRepository,
	provider billing.Provider,
	reconciler *Reconciler,
	cascade *Cascade,
	notifier notify.Notifier,
	journal *Journal,
	opts Options,
	log *zap.Logger,
) *Service {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	return &Service{
		subs:       subs,
		provider:   provider,
		reconciler: reconciler,
		cascade:    cascade,
		notifier:   notifier,
		journal:    journal,
		opts:       opts,
		log:        log,
	}
}

type CancelResult struct {
	Status            model.SubscriptionStatus
	CancelAtPeriodEnd bool
	AccessUntil       *time.Time
	Message           string
}

type ReactivateResult struct {
	NextBillingDate *time.Time
	Message         string
}

// Cancel schedules cancellation at the end of the paid period. A subscription
// the provider already considers canceled is synced locally and reported as
// success without a second cancel call.
func (s *Service) Cancel(ctx context.Context, userID string) (*CancelResult, error) {
	sub, err := s.current(ctx, userID, func(st model.SubscriptionStatus) bool {
		return st == model.SubscriptionActive || st == model.SubscriptionTrialing || st == model.SubscriptionCanceled
	})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, errNoSubscription("No se encontró una suscripción activa.")
	}
	if sub.ProviderID() == "" {
		return nil, newAppError(http.StatusBadRequest, CodeNoBillingID,
			"Tu suscripción no está asociada a un pago recurrente.", nil)
	}

	ps, err := s.getProvider(ctx, sub.ProviderID())
	if err != nil {
		return nil, errBilling("Error al cancelar la suscripción.", err)
	}

	if ps.Status.FullyCanceled() {
		return s.syncCanceled(ctx, sub)
	}
	if !ps.Status.Cancelable() {
		return nil, newAppError(http.StatusBadRequest, CodeCannotCancel,
			fmt.Sprintf("No se puede cancelar una suscripción en estado %q.", ps.Status), nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	updated, err := s.provider.SetCancelAtPeriodEnd(callCtx, sub.ProviderID(), true)
	cancel()
	if errors.Is(err, billing.ErrAlreadyCanceled) {
		return s.syncCanceled(ctx, sub)
	}
	if err != nil {
		return nil, errBilling("Error al cancelar la suscripción.", err)
	}

	sub.CancelAtPeriodEnd = true
	if !updated.CurrentPeriodEnd.IsZero() {
		end := updated.CurrentPeriodEnd
		sub.CurrentPeriodEnd = &end
	}
	if err := s.subs.Update(ctx, nil, sub); err != nil {
		return nil, s.storeError(err)
	}

	s.log.Info("subscription cancel scheduled",
		zap.Int64("subscription_id", sub.ID),
		zap.String("user_id", userID))
	s.journal.Record(ctx, JobCancel, *sub, sub.Status, 0)

	meta := map[string]any{"subscription_id": sub.ID}
	if sub.CurrentPeriodEnd != nil {
		meta["access_until"] = sub.CurrentPeriodEnd.Format(time.RFC3339)
	}
	s.notify(ctx, userID, model.NotificationSubscriptionCanceled, meta)

	return &CancelResult{
		Status:            sub.Status,
		CancelAtPeriodEnd: true,
		AccessUntil:       sub.CurrentPeriodEnd,
		Message:           "Tu suscripción se cancelará al final del período actual. Conservarás el acceso hasta entonces.",
	}, nil
}

// syncCanceled mirrors a provider-side cancellation and reports success.
func (s *Service) syncCanceled(ctx context.Context, sub *model.Subscription) (*CancelResult, error) {
	if sub.Status != model.SubscriptionCanceled {
		from := sub.Status
		sub.CancelAtPeriodEnd = false
		paused, err := s.cascade.Terminate(ctx, sub, model.SubscriptionCanceled)
		if err != nil {
			return nil, s.storeError(err)
		}
		s.journal.Record(ctx, JobCancel, *sub, from, paused)
	}
	return &CancelResult{
		Status:  model.SubscriptionCanceled,
		Message: "La suscripción ya estaba cancelada.",
	}, nil
}

// Reactivate clears a scheduled cancellation. Subscriptions the provider can no
// longer revive are synced to canceled and reported with CodeAlreadyCanceled.
func (s *Service) Reactivate(ctx context.Context, userID string) (*ReactivateResult, error) {
	sub, err := s.current(ctx, userID, func(st model.SubscriptionStatus) bool {
		return st == model.SubscriptionActive
	})
	if err != nil {
		return nil, err
	}
	if sub == nil || !sub.CancelAtPeriodEnd {
		return nil, errNoSubscription("No hay una cancelación programada que se pueda revertir.")
	}
	if sub.ProviderID() == "" {
		return nil, newAppError(http.StatusBadRequest, CodeNoBillingID,
			"Tu suscripción no está asociada a un pago recurrente.", nil)
	}

	ps, err := s.getProvider(ctx, sub.ProviderID())
	if err != nil {
		return nil, errBilling("Error al reactivar la suscripción.", err)
	}

	if ps.Status.Unrecoverable() {
		return nil, s.fullyCanceled(ctx, sub)
	}
	if !ps.Status.Cancelable() || !ps.CancelAtPeriodEnd {
		return nil, newAppError(http.StatusBadRequest, CodeCannotReactivate,
			"La suscripción no se puede reactivar en su estado actual.", nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	updated, err := s.provider.SetCancelAtPeriodEnd(callCtx, sub.ProviderID(), false)
	cancel()
	if errors.Is(err, billing.ErrAlreadyCanceled) {
		return nil, s.fullyCanceled(ctx, sub)
	}
	if err != nil {
		return nil, errBilling("Error al reactivar la suscripción.", err)
	}

	sub.CancelAtPeriodEnd = false
	if !updated.CurrentPeriodEnd.IsZero() {
		end := updated.CurrentPeriodEnd
		sub.CurrentPeriodEnd = &end
	}
	if err := s.subs.Update(ctx, nil, sub); err != nil {
		return nil, s.storeError(err)
	}

	s.log.Info("subscription reactivated",
		zap.Int64("subscription_id", sub.ID),
		zap.String("user_id", userID))
	s.journal.Record(ctx, JobReactivate, *sub, sub.Status, 0)

	meta := map[string]any{"subscription_id": sub.ID}
	if sub.CurrentPeriodEnd != nil {
		meta["next_billing_date"] = sub.CurrentPeriodEnd.Format(time.RFC3339)
	}
	s.notify(ctx, userID, model.NotificationSubscriptionReactivated, meta)

	return &ReactivateResult{
		NextBillingDate: sub.CurrentPeriodEnd,
		Message:         "Tu suscripción ha sido reactivada.",
	}, nil
}

// fullyCanceled syncs the row to canceled with the flag cleared and returns
// the error the client uses to send the user back to checkout.
func (s *Service) fullyCanceled(ctx context.Context, sub *model.Subscription) error {
	from := sub.Status
	sub.CancelAtPeriodEnd = false
	paused, err := s.cascade.Terminate(ctx, sub, model.SubscriptionCanceled)
	if err != nil {
		return s.storeError(err)
	}
	s.journal.Record(ctx, JobReactivate, *sub, from, paused)
	return newAppError(http.StatusConflict, CodeAlreadyCanceled,
		"La suscripción ya fue cancelada definitivamente. Debes suscribirte de nuevo.", nil)
}

// PortalURL returns a hosted billing-portal session for the user's customer.
func (s *Service) PortalURL(ctx context.Context, userID string) (string, error) {
	rows, err := s.subs.FindByUser(ctx, userID)
	if err != nil {
		return "", errInternal(err)
	}
	customerID := ""
	for _, r := range rows {
		if id := r.CustomerID(); id != "" {
			customerID = id
			break
		}
	}
	if customerID == "" {
		return "", newAppError(http.StatusNotFound, CodeNoCustomer,
			"No se encontró un cliente de facturación para tu cuenta.", nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	url, err := s.provider.CreatePortalSession(callCtx, customerID, s.opts.PortalReturnURL)
	if err != nil {
		return "", errBilling("Error al abrir el portal de facturación.", err)
	}
	return url, nil
}

// ApplyProviderUpdate reconciles the local row for a provider webhook snapshot.
// Snapshots for subscriptions unknown locally are ignored.
func (s *Service) ApplyProviderUpdate(ctx context.Context, ps *billing.Subscription) (Outcome, error) {
	sub, err := s.subs.GetByProviderID(ctx, ps.ID)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Debug("webhook for unknown subscription", zap.String("provider_id", ps.ID))
		return OutcomeSynced, nil
	}
	if err != nil {
		return "", err
	}
	return s.reconciler.Reconcile(ctx, JobWebhook, sub, ps)
}

// current returns the user's subscription matching want. Historical terminal
// rows may repeat; more than one open row is a data error.
func (s *Service) current(ctx context.Context, userID string, want func(model.SubscriptionStatus) bool) (*model.Subscription, error) {
	rows, err := s.subs.FindByUser(ctx, userID)
	if err != nil {
		return nil, errInternal(err)
	}

	var open, terminal *model.Subscription
	openCount := 0
	for i := range rows {
		r := &rows[i]
		if !r.Status.Terminal() {
			openCount++
			if open == nil {
				open = r
			}
		} else if terminal == nil && want(r.Status) {
			terminal = r
		}
	}
	if openCount > 1 {
		s.log.Error("duplicate open subscriptions",
			zap.String("user_id", userID),
			zap.Int("open", openCount))
		return nil, newAppError(http.StatusConflict, CodeDuplicate,
			"Tu cuenta tiene más de una suscripción abierta. Contacta con soporte.",
			repository.ErrDuplicateSubscription)
	}
	if open != nil && want(open.Status) {
		return open, nil
	}
	if open == nil && terminal != nil {
		return terminal, nil
	}
	return nil, nil
}

func (s *Service) getProvider(ctx context.Context, id string) (*billing.Subscription, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	return s.provider.GetSubscription(callCtx, id)
}

func (s *Service) storeError(err error) error {
	if errors.Is(err, repository.ErrStaleSubscription) {
		return newAppError(http.StatusConflict, CodeConcurrentUpdate,
			"La suscripción cambió mientras se procesaba tu solicitud. Inténtalo de nuevo.", err)
	}
	return errInternal(err)
}

func (s *Service) notify(ctx context.Context, userID string, t model.NotificationType, meta map[string]any) {
	if err := s.notifier.Notify(ctx, notify.New(userID, t, meta)); err != nil {
		s.log.Warn("notification not sent",
			zap.String("user_id", userID),
			zap.String("type", t.String()),
			zap.Error(err))
	}
}
