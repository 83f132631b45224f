package http

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmehdipour/realestate-billing/internal/http/middleware"
	"github.com/jmehdipour/realestate-billing/internal/metrics"
	"github.com/jmehdipour/realestate-billing/internal/ratelimit"
	echo "github.com/labstack/echo/v4"
)

type checkRequest struct {
	Key  string `json:"key"  validate:"required,max=256"`
	Rule string `json:"rule" validate:"required"`
}

type checkResponse struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetTime  time.Time `json:"resetTime"`
	RetryAfter int       `json:"retryAfter,omitempty"`
}

// rateLimitCheckHandler lets sibling services consult the shared limiter for
// one of the named rules (search, messaging, property creation, ...).
func rateLimitCheckHandler(l ratelimit.Limiter, rules ratelimit.Rules, v *validator.Validate) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req checkRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json"})
		}
		if err := v.Struct(req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		rule, ok := rules[req.Rule]
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown rule " + req.Rule})
		}

		res, err := l.Check(c.Request().Context(), req.Key, rule)
		if err != nil {
			c.Logger().Errorf("rate limit check failed: %v", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "limiter unavailable"})
		}

		decision := "allowed"
		if !res.Allowed {
			decision = "limited"
		}
		metrics.RateLimitDecisions.WithLabelValues(rule.Name, decision).Inc()

		middleware.SetRateLimitHeaders(c.Response().Header(), res)
		out := checkResponse{
			Allowed:   res.Allowed,
			Limit:     res.Limit,
			Remaining: res.Remaining,
			ResetTime: res.ResetTime,
		}
		if !res.Allowed {
			out.RetryAfter = int(res.RetryAfter(time.Now()) / time.Second)
		}
		return c.JSON(http.StatusOK, out)
	}
}
