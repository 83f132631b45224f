package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/metrics"
	"github.com/jmehdipour/realestate-billing/internal/ratelimit"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// SetRateLimitHeaders writes the X-RateLimit-* headers for res.
func SetRateLimitHeaders(h http.Header, res ratelimit.Result) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
}

// RateLimitMiddleware applies rule per authenticated user, or per client IP for
// anonymous requests. Limiter failures let the request through.
func RateLimitMiddleware(l ratelimit.Limiter, rule ratelimit.Rule, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ip:" + c.RealIP()
			if id, ok := UserIDFromCtx(c); ok {
				key = "user:" + id
			}

			res, err := l.Check(c.Request().Context(), key, rule)
			if err != nil {
				metrics.RateLimitDecisions.WithLabelValues(rule.Name, "error").Inc()
				log.Warn("rate limiter unavailable, allowing request",
					zap.String("rule", rule.Name),
					zap.Error(err))
				return next(c)
			}

			SetRateLimitHeaders(c.Response().Header(), res)
			if !res.Allowed {
				metrics.RateLimitDecisions.WithLabelValues(rule.Name, "limited").Inc()
				secs := int(res.RetryAfter(time.Now()) / time.Second)
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":      "Too Many Requests",
					"message":    fmt.Sprintf("Demasiadas solicitudes. Inténtalo de nuevo en %d segundos.", secs),
					"retryAfter": secs,
				})
			}

			metrics.RateLimitDecisions.WithLabelValues(rule.Name, "allowed").Inc()
			return next(c)
		}
	}
}
