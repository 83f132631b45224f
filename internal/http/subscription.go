package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/billing"
	"github.com/jmehdipour/realestate-billing/internal/http/middleware"
	"github.com/jmehdipour/realestate-billing/internal/service/lifecycle"
	echo "github.com/labstack/echo/v4"
)

// SubscriptionService is the part of lifecycle.Service the handlers use.
type SubscriptionService interface {
	Cancel(ctx context.Context, userID string) (*lifecycle.CancelResult, error)
	Reactivate(ctx context.Context, userID string) (*lifecycle.ReactivateResult, error)
	PortalURL(ctx context.Context, userID string) (string, error)
	ApplyProviderUpdate(ctx context.Context, ps *billing.Subscription) (lifecycle.Outcome, error)
}

type cancelResponse struct {
	Success           bool       `json:"success"`
	Message           string     `json:"message,omitempty"`
	Status            string     `json:"status,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd"`
	AccessUntil       *time.Time `json:"accessUntil,omitempty"`
}

type reactivateResponse struct {
	Success         bool       `json:"success"`
	Message         string     `json:"message,omitempty"`
	NextBillingDate *time.Time `json:"nextBillingDate,omitempty"`
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, failure{Error: "No autorizado"})
}

func cancelHandler(svc SubscriptionService, debug bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return unauthorized(c)
		}

		res, err := svc.Cancel(c.Request().Context(), userID)
		if err != nil {
			return writeFailure(c, err, debug)
		}
		return c.JSON(http.StatusOK, cancelResponse{
			Success:           true,
			Message:           res.Message,
			Status:            res.Status.String(),
			CancelAtPeriodEnd: res.CancelAtPeriodEnd,
			AccessUntil:       res.AccessUntil,
		})
	}
}

func reactivateHandler(svc SubscriptionService, debug bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return unauthorized(c)
		}

		res, err := svc.Reactivate(c.Request().Context(), userID)
		if err != nil {
			return writeFailure(c, err, debug)
		}
		return c.JSON(http.StatusOK, reactivateResponse{
			Success:         true,
			Message:         res.Message,
			NextBillingDate: res.NextBillingDate,
		})
	}
}

func portalHandler(svc SubscriptionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "No autorizado"})
		}

		url, err := svc.PortalURL(c.Request().Context(), userID)
		if err != nil {
			status, msg := http.StatusInternalServerError, "Error al abrir el portal de facturación."
			if appErr, ok := lifecycle.AsAppError(err); ok {
				status, msg = appErr.Status, appErr.Message
			}
			if status >= http.StatusInternalServerError {
				c.Logger().Errorf("portal session failed: %v", err)
			}
			return c.JSON(status, map[string]string{"error": msg})
		}
		return c.JSON(http.StatusOK, map[string]string{"url": url})
	}
}
