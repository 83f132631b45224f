package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/realestate-billing/internal/http/middleware"
	"github.com/jmehdipour/realestate-billing/internal/repository"
	echo "github.com/labstack/echo/v4"
)

// lifecycleReportHandler lists the caller's subscription transitions from
// ClickHouse together with the number of listings still published.
func lifecycleReportHandler(events repository.LifecycleEventsRepository, listings repository.ListingsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}
		job := strings.TrimSpace(c.QueryParam("job"))

		rows, err := events.ListByUser(c.Request().Context(), userID, job, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		active, err := listings.CountActiveByOwner(c.Request().Context(), userID)
		if err != nil {
			c.Logger().Errorf("count active listings failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":          limit,
			"offset":         offset,
			"count":          len(rows),
			"activeListings": active,
			"results":        rows,
		})
	}
}
