package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/jmehdipour/realestate-billing/internal/billing"
	"github.com/jmehdipour/realestate-billing/internal/repository"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

// stripeWebhookHandler verifies the signature and reconciles subscription
// updates and deletions. Other event types, and signed events whose payload
// cannot be decoded, are acknowledged and ignored.
func stripeWebhookHandler(svc SubscriptionService, verifier billing.WebhookVerifier, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "read body"})
		}
		if len(payload) > maxWebhookBody {
			return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
		}

		ev, err := verifier.ParseEvent(payload, c.Request().Header.Get("Stripe-Signature"))
		if errors.Is(err, billing.ErrMalformedEvent) {
			// authentic but undecodable: redelivery would fail the same way
			log.Warn("stripe event not understood",
				zap.Bool("unknown_status", errors.Is(err, billing.ErrUnknownStatus)),
				zap.Error(err))
			return c.JSON(http.StatusOK, map[string]any{"received": true, "ignored": true})
		}
		if err != nil {
			log.Warn("stripe webhook rejected", zap.Error(err))
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		}

		if ev.Subscription == nil {
			return c.JSON(http.StatusOK, map[string]any{"received": true})
		}

		out, err := svc.ApplyProviderUpdate(c.Request().Context(), ev.Subscription)
		if err != nil {
			log.Error("apply stripe event failed",
				zap.String("event_id", ev.ID),
				zap.String("kind", string(ev.Kind)),
				zap.String("provider_id", ev.Subscription.ID),
				zap.Error(err))
			// non-2xx makes Stripe redeliver; a lost optimistic-lock race is retried the same way
			status := http.StatusInternalServerError
			if errors.Is(err, repository.ErrStaleSubscription) {
				status = http.StatusConflict
			}
			return c.JSON(status, map[string]string{"error": "apply failed"})
		}

		log.Info("stripe event applied",
			zap.String("event_id", ev.ID),
			zap.String("kind", string(ev.Kind)),
			zap.String("outcome", string(out)))
		return c.JSON(http.StatusOK, map[string]any{"received": true, "outcome": out})
	}
}
